package pricing

import (
	"testing"

	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func band(param string, start, end int, charge int64) models.ShippingCost {
	return models.ShippingCost{
		Parameter:    param,
		ValueStart:   start,
		ValueEnd:     end,
		ShipmentType: string(ShipmentLocal),
		Charges:      decimal.NewFromInt(charge),
	}
}

func localBands() []models.ShippingCost {
	return []models.ShippingCost{
		band(models.ShippingParameterVolume, 0, 100, 5),
		band(models.ShippingParameterVolume, 101, 500, 8),
		band(models.ShippingParameterVolume, 501, 1000, 12),
		band(models.ShippingParameterVolume, 1001, 5000, 15),
		band(models.ShippingParameterWeight, 0, 10, 5),
		band(models.ShippingParameterWeight, 11, 50, 8),
		band(models.ShippingParameterWeight, 51, 100, 12),
		band(models.ShippingParameterWeight, 101, 500, 15),
	}
}

func TestClassifyShipment(t *testing.T) {
	origin := Warehouse{Country: "United States", State: "California", City: "Los Angeles"}

	tests := []struct {
		name string
		dest Location
		want ShipmentType
	}{
		{"same city", Location{Country: "United States", State: "California", City: "Los Angeles"}, ShipmentLocal},
		{"same city different case", Location{Country: "united states", State: "california", City: "los angeles"}, ShipmentLocal},
		{"other city", Location{Country: "United States", State: "California", City: "Fresno"}, ShipmentOtherCity},
		{"other state", Location{Country: "United States", State: "Nevada", City: "Reno"}, ShipmentOtherState},
		{"international", Location{Country: "Canada", State: "Ontario", City: "Toronto"}, ShipmentInternational},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyShipment(origin, tt.dest))
		})
	}
}

func TestShippingCostTakesMaxOfVolumeAndWeight(t *testing.T) {
	items := []ShippableItem{
		{Volume: 50, Weight: 60, Quantity: 2}, // max(5, 12) * 2
		{Volume: 700, Weight: 5, Quantity: 1}, // max(12, 5) * 1
		{Volume: 0, Weight: 0, Quantity: 3},   // defaults to 1/1: max(5, 5) * 3
	}
	got := ShippingCost(localBands(), items)
	assert.Equal(t, "51.00", got.StringFixed(2))
}

func TestShippingCostFallsBackToHighestBand(t *testing.T) {
	items := []ShippableItem{{Volume: 9000, Weight: 2, Quantity: 1}}
	assert.Equal(t, "15.00", ShippingCost(localBands(), items).StringFixed(2))

	gap := []models.ShippingCost{
		band(models.ShippingParameterWeight, 0, 10, 3),
		band(models.ShippingParameterWeight, 20, 30, 7),
	}
	items = []ShippableItem{{Volume: 1, Weight: 15, Quantity: 2}}
	assert.Equal(t, "14.00", ShippingCost(gap, items).StringFixed(2))
}

func TestShippingCostWithoutRules(t *testing.T) {
	items := []ShippableItem{{Volume: 10, Weight: 10, Quantity: 1}}
	assert.Equal(t, "0.00", ShippingCost(nil, items).StringFixed(2))
	assert.Equal(t, "0.00", ShippingCost(localBands(), nil).StringFixed(2))
}

func TestWarehouseConfigured(t *testing.T) {
	assert.False(t, Warehouse{}.Configured())
	assert.True(t, Warehouse{Country: "US"}.Configured())
}

func TestShippableItems(t *testing.T) {
	items := []models.OrderItem{{Volume: 10, Weight: 20, Quantity: 3}}
	assert.Equal(t, []ShippableItem{{Volume: 10, Weight: 20, Quantity: 3}}, ShippableItems(items))
}
