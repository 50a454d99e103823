package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

const orderColumns = `
	id, user_id, reference_number, status, ordered, start_date, last_updated, ordered_date,
	shipping_address_id, coupon_id, total_shipping_cost, tax_amount, wholesale_discount,
	is_tax_exempt, abandoned_email_count, abandoned_email_sent, abandoned_email_sent_at,
	recovery_link_clicked_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o           models.Order
		userID      sql.NullInt64
		addressID   sql.NullInt64
		couponID    sql.NullInt64
		orderedDate sql.NullTime
		sentAt      sql.NullTime
		clickedAt   sql.NullTime
	)
	err := row.Scan(
		&o.ID,
		&userID,
		&o.ReferenceNumber,
		&o.Status,
		&o.Ordered,
		&o.StartDate,
		&o.LastUpdated,
		&orderedDate,
		&addressID,
		&couponID,
		&o.TotalShippingCost,
		&o.TaxAmount,
		&o.WholesaleDiscount,
		&o.IsTaxExempt,
		&o.AbandonedEmailCount,
		&o.AbandonedEmailSent,
		&sentAt,
		&clickedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}
	o.UserID = int64Ptr(userID)
	o.ShippingAddressID = int64Ptr(addressID)
	o.CouponID = int64Ptr(couponID)
	o.OrderedDate = timePtr(orderedDate)
	o.AbandonedEmailSentAt = timePtr(sentAt)
	o.RecoveryLinkClickedAt = timePtr(clickedAt)
	return &o, nil
}

func generateReferenceNumber() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

// CreateCart inserts an empty not-finalized order. userID may be nil for
// anonymous carts.
func CreateCart(ctx context.Context, q database.Querier, userID *int64, now time.Time) (*models.Order, error) {
	query := `
		INSERT INTO orders (user_id, reference_number, status, ordered, start_date, last_updated, version)
		VALUES ($1, $2, $3, FALSE, $4, $4, 1)
		RETURNING ` + orderColumns

	order, err := scanOrder(q.QueryRowContext(ctx, query, nullInt64(userID), generateReferenceNumber(), models.OrderStatusNotFinalized, now))
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return order, nil
}

func GetOrder(ctx context.Context, q database.Querier, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// LockOpenOrder loads a not-finalized order and holds its row lock for the
// rest of tx.
func LockOpenOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1 AND ordered = FALSE
		FOR UPDATE`

	order, err := scanOrder(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	return order, nil
}

// FindOpenCartForUser returns the user's most recently updated cart.
func FindOpenCartForUser(ctx context.Context, q database.Querier, userID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND ordered = FALSE
		ORDER BY last_updated DESC, id DESC
		LIMIT 1`

	order, err := scanOrder(q.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("find open cart: %w", err)
	}
	return order, nil
}

func GetOpenOrderByReference(ctx context.Context, q database.Querier, reference string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE reference_number = $1 AND ordered = FALSE`

	order, err := scanOrder(q.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by reference: %w", err)
	}
	return order, nil
}

// AttachUser hands an anonymous cart to userID and refreshes o.
func AttachUser(ctx context.Context, q database.Querier, o *models.Order, userID int64) error {
	err := q.QueryRowContext(ctx,
		`UPDATE orders SET user_id = $1, version = version + 1
		 WHERE id = $2 AND user_id IS NULL
		 RETURNING version`,
		userID, o.ID).Scan(&o.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrOrderNotFound
		}
		return fmt.Errorf("attach user: %w", err)
	}
	o.UserID = &userID
	return nil
}

// SaveOrderPricing persists the priced fields of an order read at
// o.Version and advances o.Version. A row changed since it was read fails
// with ErrOptimisticLockFailed.
func SaveOrderPricing(ctx context.Context, q database.Querier, o *models.Order) error {
	err := q.QueryRowContext(ctx,
		`UPDATE orders
		 SET coupon_id = $1,
		     shipping_address_id = $2,
		     total_shipping_cost = $3,
		     tax_amount = $4,
		     wholesale_discount = $5,
		     is_tax_exempt = $6,
		     version = version + 1
		 WHERE id = $7 AND version = $8
		 RETURNING version`,
		nullInt64(o.CouponID), nullInt64(o.ShippingAddressID), o.TotalShippingCost,
		o.TaxAmount, o.WholesaleDiscount, o.IsTaxExempt, o.ID, o.Version).Scan(&o.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save order pricing: %w", err)
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
		return fmt.Errorf("save order pricing: %w", err)
	}
	if !exists {
		return database.ErrOrderNotFound
	}
	return fmt.Errorf("save order %d at version %d: %w", o.ID, o.Version, database.ErrOptimisticLockFailed)
}

// TouchCart restarts the abandonment clock after a user changed the cart.
// Shipping is zeroed because it depends on the items.
func TouchCart(ctx context.Context, q database.Querier, orderID int64, now time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET start_date = $1,
		     last_updated = $1,
		     abandoned_email_count = 0,
		     abandoned_email_sent = FALSE,
		     abandoned_email_sent_at = NULL,
		     total_shipping_cost = 0,
		     version = version + 1
		 WHERE id = $2`,
		now, orderID)
	if err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return expectOneRow(result, database.ErrOrderNotFound)
}

// MarkRecoveryClicked refreshes start_date for carts that were already
// emailed about, keeping the email count.
func MarkRecoveryClicked(ctx context.Context, q database.Querier, orderID int64, now time.Time) error {
	_, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET start_date = $1,
		     recovery_link_clicked_at = $1
		 WHERE id = $2 AND abandoned_email_count > 0`,
		now, orderID)
	if err != nil {
		return fmt.Errorf("mark recovery clicked: %w", err)
	}
	return nil
}

// ClearCartPricing drops everything that only makes sense for a non-empty cart.
func ClearCartPricing(ctx context.Context, q database.Querier, orderID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET coupon_id = NULL,
		     total_shipping_cost = 0,
		     tax_amount = 0,
		     is_tax_exempt = FALSE,
		     wholesale_discount = 0,
		     version = version + 1
		 WHERE id = $1`,
		orderID)
	if err != nil {
		return fmt.Errorf("clear cart pricing: %w", err)
	}
	return nil
}

func FinalizeOrder(ctx context.Context, tx *sql.Tx, orderID int64, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET ordered = TRUE,
		     status = $1,
		     ordered_date = $2,
		     last_updated = $2,
		     version = version + 1
		 WHERE id = $3 AND ordered = FALSE`,
		models.OrderStatusOrdered, now, orderID)
	if err != nil {
		return fmt.Errorf("finalize order: %w", err)
	}
	return expectOneRow(result, database.ErrOrderNotFound)
}

// CouponConsumedByUser reports whether the user holds an order past the
// not-finalized state that carries the coupon.
func CouponConsumedByUser(ctx context.Context, q database.Querier, userID, couponID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM orders
			WHERE user_id = $1 AND coupon_id = $2 AND status <> $3
		)`,
		userID, couponID, models.OrderStatusNotFinalized).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check coupon usage: %w", err)
	}
	return exists, nil
}

// ListOrdersCursor pages through a user's placed orders, newest first.
func ListOrdersCursor(ctx context.Context, q database.Querier, userID int64, cursor string, limit int) (*CursorPage[models.Order], error) {
	after, ok, err := ParseOrderCursor(cursor)
	if err != nil {
		return nil, err
	}

	args := []any{userID}
	keyset := ""
	if ok {
		keyset = "AND (ordered_date, id) < ($2, $3)"
		args = append(args, after.OrderedDate, after.ID)
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`SELECT %s
		FROM orders
		WHERE user_id = $1
		  AND ordered = TRUE
		  %s
		ORDER BY ordered_date DESC, id DESC
		LIMIT $%d`, orderColumns, keyset, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newCursorPage(orders, limit, func(o models.Order) string {
		c := OrderCursor{ID: o.ID}
		if o.OrderedDate != nil {
			c.OrderedDate = *o.OrderedDate
		}
		return c.Encode()
	}), nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
