// Package pricing holds the order pricing calculators: tax, wholesale and
// coupon discounts, shipping and the grand total. Everything here is pure;
// callers load rows from storage and pass them in.
package pricing

import (
	"strings"
	"time"

	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Location struct {
	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city,omitempty"`
}

func (l Location) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.State, l.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ResolveTaxRate picks the most specific rate applicable to loc on today.
// City rates override state rates, which override country rates. Within a
// level the most recent effective date wins. Returns nil when nothing applies.
func ResolveTaxRate(rates []models.TaxRate, loc Location, today time.Time) *models.TaxRate {
	day := models.DateOf(today)
	country := strings.TrimSpace(loc.Country)
	state := strings.TrimSpace(loc.State)
	city := strings.TrimSpace(loc.City)

	if country == "" {
		return nil
	}

	var cityBest, stateBest, countryBest *models.TaxRate
	for i := range rates {
		r := &rates[i]
		if !rateApplies(r, day) || !strings.EqualFold(r.Country, country) {
			continue
		}
		switch {
		case r.State != "" && r.City != "":
			if city != "" && strings.EqualFold(r.State, state) && strings.EqualFold(r.City, city) {
				cityBest = newer(cityBest, r)
			}
		case r.State != "":
			if strings.EqualFold(r.State, state) {
				stateBest = newer(stateBest, r)
			}
		default:
			countryBest = newer(countryBest, r)
		}
	}

	switch {
	case cityBest != nil:
		return cityBest
	case stateBest != nil:
		return stateBest
	default:
		return countryBest
	}
}

func rateApplies(r *models.TaxRate, day time.Time) bool {
	if !r.IsActive {
		return false
	}
	if models.DateOf(r.EffectiveDate).After(day) {
		return false
	}
	if r.ExpiryDate != nil && models.DateOf(*r.ExpiryDate).Before(day) {
		return false
	}
	return true
}

func newer(current, candidate *models.TaxRate) *models.TaxRate {
	if current == nil || candidate.EffectiveDate.After(current.EffectiveDate) {
		return candidate
	}
	return current
}

type TaxResult struct {
	TaxableAmount decimal.Decimal
	TaxAmount     decimal.Decimal
	Rate          decimal.Decimal
	TaxType       string
	IsExempt      bool
	Found         bool
}

// RatePercentage renders the rate as "8.75%".
func (r TaxResult) RatePercentage() string {
	return FormatPercent(r.Rate.Mul(hundred))
}

// CalculateTax applies rate to taxable. A nil rate yields zero tax and
// Found=false; exempt forces zero tax regardless of the rate.
func CalculateTax(taxable decimal.Decimal, rate *models.TaxRate, exempt bool) TaxResult {
	res := TaxResult{
		TaxableAmount: taxable,
		TaxAmount:     decimal.Zero,
		Rate:          decimal.Zero,
		IsExempt:      exempt,
	}
	if rate == nil {
		return res
	}
	res.Found = true
	res.Rate = rate.Rate
	res.TaxType = rate.TaxType
	if exempt || taxable.LessThanOrEqual(decimal.Zero) {
		return res
	}
	res.TaxAmount = taxable.Mul(rate.Rate).Round(2)
	return res
}

// FormatPercent trims trailing zeros: 8.75 -> "8.75%", 9.00 -> "9%".
func FormatPercent(pct decimal.Decimal) string {
	return pct.Round(4).String() + "%"
}
