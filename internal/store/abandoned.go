package store

import (
	"context"
	"fmt"
	"time"

	"github.com/safar/go-sql-checkout/internal/database"
)

type AbandonedCart struct {
	OrderID         int64
	UserID          int64
	Email           string
	FirstName       string
	ReferenceNumber string
	EmailCount      int
	StartDate       time.Time
	LastUpdated     time.Time
}

// FindAbandonedCarts lists open, non-empty carts of users with an email
// whose clock started before startedBefore and that have received exactly
// emailCount reminders. Most recently updated first.
func FindAbandonedCarts(ctx context.Context, q database.Querier, emailCount int, startedBefore time.Time) ([]AbandonedCart, error) {
	query := `
		SELECT o.id, o.user_id, u.email, u.first_name, o.reference_number,
		       o.abandoned_email_count, o.start_date, o.last_updated
		FROM orders o
		JOIN users u ON u.id = o.user_id
		WHERE o.ordered = FALSE
		  AND o.abandoned_email_count = $1
		  AND o.start_date < $2
		  AND u.email <> ''
		  AND EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = o.id)
		ORDER BY o.last_updated DESC, o.id DESC`

	rows, err := q.QueryContext(ctx, query, emailCount, startedBefore)
	if err != nil {
		return nil, fmt.Errorf("find abandoned carts: %w", err)
	}
	defer rows.Close()

	carts := []AbandonedCart{}
	for rows.Next() {
		var c AbandonedCart
		err := rows.Scan(&c.OrderID, &c.UserID, &c.Email, &c.FirstName, &c.ReferenceNumber,
			&c.EmailCount, &c.StartDate, &c.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("scan abandoned cart: %w", err)
		}
		carts = append(carts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return carts, nil
}

// MarkReminderSent advances the email count from fromCount to fromCount+1.
// The cart must still be untouched since startedBefore. It reports false when
// the cart moved on in the meantime, for example because the user edited it
// or another run got there first.
func MarkReminderSent(ctx context.Context, q database.Querier, orderID int64, fromCount int, startedBefore, at time.Time) (bool, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET abandoned_email_count = abandoned_email_count + 1,
		     abandoned_email_sent = TRUE,
		     abandoned_email_sent_at = $1
		 WHERE id = $2
		   AND ordered = FALSE
		   AND abandoned_email_count = $3
		   AND start_date < $4`,
		at, orderID, fromCount, startedBefore)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n == 1, nil
}
