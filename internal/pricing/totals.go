package pricing

import (
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
)

const (
	DiscountNone      = ""
	DiscountWholesale = "wholesale"
	DiscountCoupon    = "coupon"
)

type Totals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	WholesaleDiscount  decimal.Decimal `json:"wholesale_discount"`
	CouponDiscount     decimal.Decimal `json:"coupon_discount"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountKind       string          `json:"discount_kind,omitempty"`
	DiscountedSubtotal decimal.Decimal `json:"discounted_subtotal"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	ShippingCost       decimal.Decimal `json:"shipping_cost"`
	GrandTotal         decimal.Decimal `json:"grand_total"`
}

func Subtotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// AppliedDiscount picks exactly one of the wholesale or coupon discount.
// Wholesale wins whenever it is positive.
func AppliedDiscount(subtotal, wholesale decimal.Decimal, coupon *models.Coupon) (amount decimal.Decimal, kind string) {
	if wholesale.IsPositive() {
		return decimal.Min(wholesale, subtotal), DiscountWholesale
	}
	if d := CouponDiscount(coupon, subtotal); d.IsPositive() {
		return d, DiscountCoupon
	}
	return decimal.Zero, DiscountNone
}

// OrderTotals computes grand = (subtotal - discount) + tax + shipping from the
// stored tax and shipping figures on o.
func OrderTotals(o *models.Order) Totals {
	subtotal := Subtotal(o.Items)
	discount, kind := AppliedDiscount(subtotal, o.WholesaleDiscount, o.Coupon)

	t := Totals{
		Subtotal:           subtotal,
		WholesaleDiscount:  decimal.Zero,
		CouponDiscount:     decimal.Zero,
		Discount:           discount,
		DiscountKind:       kind,
		DiscountedSubtotal: subtotal.Sub(discount),
		TaxAmount:          o.TaxAmount,
		ShippingCost:       o.TotalShippingCost,
	}
	switch kind {
	case DiscountWholesale:
		t.WholesaleDiscount = discount
	case DiscountCoupon:
		t.CouponDiscount = discount
	}
	t.GrandTotal = t.DiscountedSubtotal.Add(t.TaxAmount).Add(t.ShippingCost)
	return t
}
