package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

const itemColumns = `
	oi.id, oi.order_id, oi.variant_id, v.sku, v.title, oi.quantity, v.price, v.volume, v.weight, oi.created_at`

func scanItem(row rowScanner) (*models.OrderItem, error) {
	var item models.OrderItem
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.VariantID,
		&item.SKU,
		&item.Title,
		&item.Quantity,
		&item.UnitPrice,
		&item.Volume,
		&item.Weight,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListOrderItems returns the items priced at the variants' current prices.
func ListOrderItems(ctx context.Context, q database.Querier, orderID int64) ([]models.OrderItem, error) {
	query := `SELECT ` + itemColumns + `
		FROM order_items oi
		JOIN variants v ON v.id = oi.variant_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	items := []models.OrderItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

func GetOrderItem(ctx context.Context, q database.Querier, orderID, itemID int64) (*models.OrderItem, error) {
	query := `SELECT ` + itemColumns + `
		FROM order_items oi
		JOIN variants v ON v.id = oi.variant_id
		WHERE oi.order_id = $1 AND oi.id = $2`

	item, err := scanItem(q.QueryRowContext(ctx, query, orderID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderItemNotFound
		}
		return nil, fmt.Errorf("get order item: %w", err)
	}
	return item, nil
}

// AddOrderItem inserts the variant or bumps the quantity of an existing line
// and returns the resulting quantity.
func AddOrderItem(ctx context.Context, q database.Querier, orderID, variantID int64, quantity int) (int, error) {
	var total int
	err := q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, variant_id, quantity, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (order_id, variant_id)
		 DO UPDATE SET quantity = order_items.quantity + EXCLUDED.quantity
		 RETURNING quantity`,
		orderID, variantID, quantity).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("add order item: %w", err)
	}
	return total, nil
}

func SetOrderItemQuantity(ctx context.Context, q database.Querier, orderID, itemID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE order_items SET quantity = $1 WHERE order_id = $2 AND id = $3`,
		quantity, orderID, itemID)
	if err != nil {
		return fmt.Errorf("update order item: %w", err)
	}
	return expectOneRow(result, database.ErrOrderItemNotFound)
}

func DeleteOrderItem(ctx context.Context, q database.Querier, orderID, itemID int64) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM order_items WHERE order_id = $1 AND id = $2`,
		orderID, itemID)
	if err != nil {
		return fmt.Errorf("delete order item: %w", err)
	}
	return expectOneRow(result, database.ErrOrderItemNotFound)
}

func DeleteOrderItems(ctx context.Context, q database.Querier, orderID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}
