package strategy

import "github.com/shopspring/decimal"

// priceScale is the number of decimals prices are sent with.
const priceScale = 2

// FloorTick snaps price down to a multiple of tick. Buy quotes use it so
// rounding never moves them closer to theo.
func FloorTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price.RoundFloor(priceScale)
	}
	return price.Div(tick).Floor().Mul(tick).Round(priceScale)
}

// CeilTick snaps price up to a multiple of tick.
func CeilTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price.RoundCeil(priceScale)
	}
	return price.Div(tick).Ceil().Mul(tick).Round(priceScale)
}

// FormatPrice renders a price the way the gateway expects it.
func FormatPrice(price decimal.Decimal) string {
	return price.StringFixed(priceScale)
}
