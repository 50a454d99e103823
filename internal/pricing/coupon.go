package pricing

import (
	"errors"
	"fmt"

	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrCouponWithWholesale = errors.New("coupon cannot be combined with a wholesale discount")
	ErrCouponInvalid       = errors.New("coupon code is invalid")
	ErrCouponLoginRequired = errors.New("coupon requires an authenticated user")
	ErrCouponConsumed      = errors.New("coupon already consumed by user")
	ErrCouponEmptyCart     = errors.New("coupon applied to empty cart")
	ErrCouponMinimumAmount = errors.New("coupon minimum order amount not met")
)

// IsCouponError reports whether err is a coupon rule violation.
func IsCouponError(err error) bool {
	for _, target := range []error{
		ErrCouponWithWholesale, ErrCouponInvalid, ErrCouponLoginRequired,
		ErrCouponConsumed, ErrCouponEmptyCart, ErrCouponMinimumAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// MinimumAmountError carries the amount the order has to reach.
type MinimumAmountError struct {
	Minimum decimal.Decimal
}

func (e *MinimumAmountError) Error() string {
	return fmt.Sprintf("%s: minimum is %s", ErrCouponMinimumAmount, e.Minimum.StringFixed(2))
}

func (e *MinimumAmountError) Unwrap() error {
	return ErrCouponMinimumAmount
}

// CouponCheck is what the coupon rules need to know about the order and the
// requesting user. UserID is zero for anonymous requests.
type CouponCheck struct {
	UserID            int64
	ItemCount         int
	Subtotal          decimal.Decimal
	WholesaleDiscount decimal.Decimal
	// ConsumedBefore reports whether the user already holds a finalized
	// order carrying this coupon.
	ConsumedBefore bool
}

// ValidateCoupon runs the coupon rules in order and returns the first violation.
// A nil coupon means the code did not resolve.
func ValidateCoupon(c *models.Coupon, check CouponCheck) error {
	if check.WholesaleDiscount.IsPositive() {
		return ErrCouponWithWholesale
	}
	if c == nil || !c.Active {
		return ErrCouponInvalid
	}
	if c.SingleUsePerUser {
		if check.UserID == 0 {
			return ErrCouponLoginRequired
		}
		if check.ConsumedBefore {
			return ErrCouponConsumed
		}
	}
	if c.CreatedForUserID != nil && *c.CreatedForUserID != check.UserID {
		return ErrCouponInvalid
	}
	if check.ItemCount == 0 {
		return ErrCouponEmptyCart
	}
	if c.MinimumOrderAmount.IsPositive() && check.Subtotal.LessThan(c.MinimumOrderAmount) {
		return &MinimumAmountError{Minimum: c.MinimumOrderAmount}
	}
	return nil
}

// CouponDiscount returns the discount c grants on subtotal. Fixed amounts are
// capped at the subtotal so the discounted total never goes negative.
func CouponDiscount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if c == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch c.DiscountType {
	case models.DiscountTypePercentage:
		d = subtotal.Mul(c.Discount).Div(hundred).Round(2)
	case models.DiscountTypeFixedAmount:
		d = c.Discount
	default:
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
