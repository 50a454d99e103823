package pricing

import (
	"sort"
	"strings"

	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
)

type ShipmentType string

const (
	ShipmentLocal         ShipmentType = "L"
	ShipmentOtherCity     ShipmentType = "OC"
	ShipmentOtherState    ShipmentType = "OS"
	ShipmentInternational ShipmentType = "I"
)

// Warehouse is the origin every order ships from.
type Warehouse struct {
	Country string
	State   string
	City    string
}

func (w Warehouse) Configured() bool {
	return strings.TrimSpace(w.Country) != ""
}

func ClassifyShipment(origin Warehouse, dest Location) ShipmentType {
	switch {
	case !sameName(origin.Country, dest.Country):
		return ShipmentInternational
	case !sameName(origin.State, dest.State):
		return ShipmentOtherState
	case !sameName(origin.City, dest.City):
		return ShipmentOtherCity
	default:
		return ShipmentLocal
	}
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

type ShippableItem struct {
	Volume   int
	Weight   int
	Quantity int
}

func ShippableItems(items []models.OrderItem) []ShippableItem {
	out := make([]ShippableItem, 0, len(items))
	for _, it := range items {
		out = append(out, ShippableItem{Volume: it.Volume, Weight: it.Weight, Quantity: it.Quantity})
	}
	return out
}

// ShippingCost sums, over items, max(volume charge, weight charge) * quantity.
// rules must already be filtered to one shipment type. No rules means zero.
func ShippingCost(rules []models.ShippingCost, items []ShippableItem) decimal.Decimal {
	volume := bandsFor(rules, models.ShippingParameterVolume)
	weight := bandsFor(rules, models.ShippingParameterWeight)
	if len(volume) == 0 && len(weight) == 0 {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		v := it.Volume
		if v <= 0 {
			v = 1
		}
		w := it.Weight
		if w <= 0 {
			w = 1
		}
		unit := decimal.Max(chargeFor(volume, v), chargeFor(weight, w))
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

func bandsFor(rules []models.ShippingCost, parameter string) []models.ShippingCost {
	var out []models.ShippingCost
	for _, r := range rules {
		if r.Parameter == parameter {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValueStart < out[j].ValueStart })
	return out
}

// chargeFor finds the band containing value, falling back to the band with
// the highest upper bound.
func chargeFor(bands []models.ShippingCost, value int) decimal.Decimal {
	if len(bands) == 0 {
		return decimal.Zero
	}
	for _, b := range bands {
		if value >= b.ValueStart && value <= b.ValueEnd {
			return b.Charges
		}
	}
	top := bands[0]
	for _, b := range bands[1:] {
		if b.ValueEnd > top.ValueEnd {
			top = b
		}
	}
	return top.Charges
}
