package usecase

import "github.com/shopspring/decimal"

// 金額計算のルール。税率や送料はここに寄せて、コードに直書きしない。
type PricingRules struct {
	TaxRate               decimal.Decimal // 0.15
	FreeShippingThreshold decimal.Decimal // 100を超えたら送料無料
	FlatShippingPrice     decimal.Decimal // それ以外は定額10
}

type PricingItem struct {
	UnitPrice decimal.Decimal
	Quantity  int64
}

type Quote struct {
	ItemsPrice    decimal.Decimal
	ShippingPrice decimal.Decimal
	TaxPrice      decimal.Decimal
	TotalPrice    decimal.Decimal
}

// Quoteを計算する純関数。副作用なし、何度呼んでも同じ結果。
// 各段階で小数2桁に丸めてから合算する（浮動小数のドリフトを入れない）。
// decimalのRoundはhalf away from zeroで、ここで扱う非負金額ではhalf-upと同じ。
func CalculateQuote(items []PricingItem, rules PricingRules) Quote {
	itemsPrice := decimal.Zero
	for _, it := range items {
		line := it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
		itemsPrice = itemsPrice.Add(line)
	}
	itemsPrice = itemsPrice.Round(2)

	shippingPrice := rules.FlatShippingPrice.Round(2)
	if itemsPrice.GreaterThan(rules.FreeShippingThreshold) {
		shippingPrice = decimal.Zero.Round(2)
	}

	taxPrice := itemsPrice.Mul(rules.TaxRate).Round(2)

	totalPrice := itemsPrice.Add(shippingPrice).Add(taxPrice).Round(2)

	return Quote{
		ItemsPrice:    itemsPrice,
		ShippingPrice: shippingPrice,
		TaxPrice:      taxPrice,
		TotalPrice:    totalPrice,
	}
}
