package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
)

const variantColumns = `id, sku, title, price, stock_quantity, volume, weight, created_at, updated_at, version`

func scanVariant(row rowScanner) (*models.Variant, error) {
	var v models.Variant
	err := row.Scan(
		&v.ID,
		&v.SKU,
		&v.Title,
		&v.Price,
		&v.StockQuantity,
		&v.Volume,
		&v.Weight,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.Version,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type CreateVariantParams struct {
	SKU    string
	Title  string
	Price  decimal.Decimal
	Stock  int
	Volume int
	Weight int
}

func CreateVariant(ctx context.Context, q database.Querier, p CreateVariantParams) (*models.Variant, error) {
	if p.Volume <= 0 {
		p.Volume = 1
	}
	if p.Weight <= 0 {
		p.Weight = 1
	}

	query := `
		INSERT INTO variants (sku, title, price, stock_quantity, volume, weight, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + variantColumns

	v, err := scanVariant(q.QueryRowContext(ctx, query, p.SKU, p.Title, p.Price, p.Stock, p.Volume, p.Weight))
	if err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}
	return v, nil
}

func GetVariant(ctx context.Context, q database.Querier, id int64) (*models.Variant, error) {
	v, err := scanVariant(q.QueryRowContext(ctx, `SELECT `+variantColumns+` FROM variants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return v, nil
}

// ReserveStockNoWait locks the variant row and fails fast with ErrLockTimeout
// when another transaction holds it.
func ReserveStockNoWait(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) (*models.Variant, error) {
	query := `SELECT ` + variantColumns + `
		FROM variants
		WHERE id = $1
		FOR UPDATE NOWAIT`

	v, err := scanVariant(tx.QueryRowContext(ctx, query, variantID))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
			return nil, database.ErrLockTimeout
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVariantNotFound
		}
		return nil, fmt.Errorf("lock variant (nowait): %w", err)
	}

	if v.StockQuantity < quantity {
		return nil, database.ErrInsufficientStock
	}

	return v, nil
}

func DecrementStock(ctx context.Context, tx *sql.Tx, variantID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE variants
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, variantID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return expectOneRow(result, database.ErrInsufficientStock)
}

// ListVariants returns one page of the catalogue, newest first. page is
// 1-based.
func ListVariants(ctx context.Context, q database.Querier, page, pageSize int) (*OffsetPage[models.Variant], error) {
	if page < 1 {
		page = 1
	}
	pageSize = ClampPageSize(pageSize)

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM variants`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count variants: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + variantColumns + `
		FROM variants
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	variants := []models.Variant{}
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(variants, total, page, pageSize), nil
}
