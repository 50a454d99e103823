package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type WholesaleTier struct {
	Threshold  decimal.Decimal `json:"threshold"`
	Percentage decimal.Decimal `json:"percentage"`
}

// WholesaleConfig is the tier table applied to wholesale users. Tiers are
// ordered by ascending threshold.
type WholesaleConfig struct {
	Name  string          `json:"name"`
	Tiers []WholesaleTier `json:"tiers"`
}

func DefaultWholesaleConfig() WholesaleConfig {
	return WholesaleConfig{
		Name: "Default Wholesale Discounts",
		Tiers: []WholesaleTier{
			{Threshold: decimal.NewFromInt(500), Percentage: decimal.NewFromInt(10)},
			{Threshold: decimal.NewFromInt(1000), Percentage: decimal.NewFromInt(15)},
			{Threshold: decimal.NewFromInt(2000), Percentage: decimal.NewFromInt(20)},
			{Threshold: decimal.NewFromInt(2500), Percentage: decimal.NewFromInt(25)},
		},
	}
}

func (c WholesaleConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return errors.New("wholesale tiers cannot be empty")
	}
	for i, t := range c.Tiers {
		if t.Threshold.IsNegative() {
			return fmt.Errorf("wholesale tier %d: threshold must not be negative", i+1)
		}
		if t.Percentage.IsNegative() || t.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("wholesale tier %d: percentage must be between 0 and 100", i+1)
		}
		if i > 0 && t.Threshold.LessThan(c.Tiers[i-1].Threshold) {
			return fmt.Errorf("wholesale tier %d: thresholds must be non-decreasing", i+1)
		}
	}
	return nil
}

// Percentage returns the percentage of the highest tier amount meets, or zero.
func (c WholesaleConfig) Percentage(amount decimal.Decimal) decimal.Decimal {
	for i := len(c.Tiers) - 1; i >= 0; i-- {
		if amount.GreaterThanOrEqual(c.Tiers[i].Threshold) {
			return c.Tiers[i].Percentage
		}
	}
	return decimal.Zero
}

type WholesaleDiscount struct {
	IsWholesale bool
	Amount      decimal.Decimal
	Percentage  decimal.Decimal
}

// CalculateWholesaleDiscount returns amount * pct / 100 for wholesale users
// and zero for everybody else.
func CalculateWholesaleDiscount(cfg WholesaleConfig, amount decimal.Decimal, isWholesale bool) WholesaleDiscount {
	if !isWholesale || !amount.IsPositive() {
		return WholesaleDiscount{IsWholesale: isWholesale, Amount: decimal.Zero, Percentage: decimal.Zero}
	}
	pct := cfg.Percentage(amount)
	return WholesaleDiscount{
		IsWholesale: true,
		Amount:      amount.Mul(pct).Div(hundred).Round(2),
		Percentage:  pct,
	}
}

type NextThreshold struct {
	Threshold    decimal.Decimal `json:"threshold"`
	Percentage   decimal.Decimal `json:"percentage"`
	AmountNeeded decimal.Decimal `json:"amount_needed"`
	Description  string          `json:"description"`
	Maximum      bool            `json:"maximum"`
}

func (c WholesaleConfig) NextThreshold(amount decimal.Decimal) NextThreshold {
	for _, t := range c.Tiers {
		if amount.LessThan(t.Threshold) {
			needed := t.Threshold.Sub(amount)
			return NextThreshold{
				Threshold:    t.Threshold,
				Percentage:   t.Percentage,
				AmountNeeded: needed,
				Description:  fmt.Sprintf("Add $%s more to get %s off", needed.StringFixed(2), FormatPercent(t.Percentage)),
			}
		}
	}
	return NextThreshold{
		AmountNeeded: decimal.Zero,
		Description:  "Maximum discount reached",
		Maximum:      true,
	}
}
