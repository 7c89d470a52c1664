package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func defaultRules() PricingRules {
	return PricingRules{
		TaxRate:               decimal.RequireFromString("0.15"),
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingPrice:     decimal.NewFromInt(10),
	}
}

func TestCalculateQuote_FreeShippingOverThreshold(t *testing.T) {
	// 60ドル×2 = 120 > 100 なので送料無料
	q := CalculateQuote([]PricingItem{
		{UnitPrice: decimal.NewFromInt(60), Quantity: 2},
	}, defaultRules())

	assert.Equal(t, "120.00", q.ItemsPrice.StringFixed(2))
	assert.Equal(t, "0.00", q.ShippingPrice.StringFixed(2))
	assert.Equal(t, "18.00", q.TaxPrice.StringFixed(2))
	assert.Equal(t, "138.00", q.TotalPrice.StringFixed(2))
}

func TestCalculateQuote_FlatShippingUnderThreshold(t *testing.T) {
	q := CalculateQuote([]PricingItem{
		{UnitPrice: decimal.NewFromInt(10), Quantity: 1},
	}, defaultRules())

	assert.Equal(t, "10.00", q.ItemsPrice.StringFixed(2))
	assert.Equal(t, "10.00", q.ShippingPrice.StringFixed(2))
	assert.Equal(t, "1.50", q.TaxPrice.StringFixed(2))
	assert.Equal(t, "21.50", q.TotalPrice.StringFixed(2))
}

func TestCalculateQuote_ExactlyThresholdPaysShipping(t *testing.T) {
	// 100ちょうどは「超えた」に入らない
	q := CalculateQuote([]PricingItem{
		{UnitPrice: decimal.NewFromInt(50), Quantity: 2},
	}, defaultRules())

	assert.Equal(t, "100.00", q.ItemsPrice.StringFixed(2))
	assert.Equal(t, "10.00", q.ShippingPrice.StringFixed(2))
}

func TestCalculateQuote_RoundsHalfUpPerStage(t *testing.T) {
	// 3.335 × 3 = 10.005 → 10.01、税 10.01 × 0.15 = 1.5015 → 1.50
	q := CalculateQuote([]PricingItem{
		{UnitPrice: decimal.RequireFromString("3.335"), Quantity: 3},
	}, defaultRules())

	assert.Equal(t, "10.01", q.ItemsPrice.StringFixed(2))
	assert.Equal(t, "1.50", q.TaxPrice.StringFixed(2))
	assert.Equal(t, "21.51", q.TotalPrice.StringFixed(2))
}

func TestCalculateQuote_EmptyItems(t *testing.T) {
	q := CalculateQuote(nil, defaultRules())

	assert.True(t, q.ItemsPrice.IsZero())
	assert.Equal(t, "10.00", q.ShippingPrice.StringFixed(2))
	assert.True(t, q.TaxPrice.IsZero())
	assert.Equal(t, "10.00", q.TotalPrice.StringFixed(2))
}

func TestCalculateQuote_Deterministic(t *testing.T) {
	items := []PricingItem{
		{UnitPrice: decimal.RequireFromString("19.99"), Quantity: 3},
		{UnitPrice: decimal.RequireFromString("0.01"), Quantity: 7},
	}
	first := CalculateQuote(items, defaultRules())
	second := CalculateQuote(items, defaultRules())

	assert.True(t, first.TotalPrice.Equal(second.TotalPrice))
	assert.Equal(t, "60.04", first.ItemsPrice.StringFixed(2))
}
