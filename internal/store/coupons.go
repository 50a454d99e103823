package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-sql-checkout/internal/database"
	"github.com/safar/go-sql-checkout/internal/models"
)

const couponColumns = `
	id, title, code, discount, discount_type, minimum_order_amount, single_use_per_user,
	created_for_user_id, active`

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var (
		c       models.Coupon
		forUser sql.NullInt64
	)
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Code,
		&c.Discount,
		&c.DiscountType,
		&c.MinimumOrderAmount,
		&c.SingleUsePerUser,
		&forUser,
		&c.Active,
	)
	if err != nil {
		return nil, err
	}
	c.CreatedForUserID = int64Ptr(forUser)
	return &c, nil
}

func CreateCoupon(ctx context.Context, q database.Querier, c models.Coupon) (*models.Coupon, error) {
	query := `
		INSERT INTO coupons (title, code, discount, discount_type, minimum_order_amount,
		                     single_use_per_user, created_for_user_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING ` + couponColumns

	created, err := scanCoupon(q.QueryRowContext(ctx, query,
		c.Title, strings.TrimSpace(c.Code), c.Discount, c.DiscountType, c.MinimumOrderAmount,
		c.SingleUsePerUser, nullInt64(c.CreatedForUserID), c.Active))
	if err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}
	return created, nil
}

func GetCoupon(ctx context.Context, q database.Querier, id int64) (*models.Coupon, error) {
	c, err := scanCoupon(q.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// GetCouponByCode matches the code exactly, whether or not it is active.
func GetCouponByCode(ctx context.Context, q database.Querier, code string) (*models.Coupon, error) {
	c, err := scanCoupon(q.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, strings.TrimSpace(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}
	return c, nil
}

// EnsureCoupon creates the coupon when its code is unknown and otherwise
// forces it active, leaving the other fields as they are.
func EnsureCoupon(ctx context.Context, q database.Querier, c models.Coupon) (*models.Coupon, error) {
	query := `
		INSERT INTO coupons (title, code, discount, discount_type, minimum_order_amount,
		                     single_use_per_user, created_for_user_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, TRUE, NOW())
		ON CONFLICT (code) DO UPDATE SET active = TRUE
		RETURNING ` + couponColumns

	ensured, err := scanCoupon(q.QueryRowContext(ctx, query,
		c.Title, c.Code, c.Discount, c.DiscountType, c.MinimumOrderAmount, c.SingleUsePerUser))
	if err != nil {
		return nil, fmt.Errorf("ensure coupon: %w", err)
	}
	return ensured, nil
}
