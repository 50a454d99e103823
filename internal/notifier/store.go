package notifier

import (
	"context"
	"database/sql"
	"time"

	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/store"
)

// SQLStore runs the notifier queries against Postgres.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) FindAbandonedCarts(ctx context.Context, emailCount int, startedBefore time.Time) ([]store.AbandonedCart, error) {
	return store.FindAbandonedCarts(ctx, s.db, emailCount, startedBefore)
}

func (s *SQLStore) CartItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return store.ListOrderItems(ctx, s.db, orderID)
}

func (s *SQLStore) EnsureCoupon(ctx context.Context, c models.Coupon) (*models.Coupon, error) {
	return store.EnsureCoupon(ctx, s.db, c)
}

func (s *SQLStore) MarkReminderSent(ctx context.Context, orderID int64, fromCount int, startedBefore, at time.Time) (bool, error) {
	return store.MarkReminderSent(ctx, s.db, orderID, fromCount, startedBefore, at)
}
