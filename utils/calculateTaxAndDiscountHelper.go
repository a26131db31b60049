package utils

import (
	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every stored amount is rounded to.
const MoneyPlaces int32 = 2

var decimalOneHundred = decimal.NewFromInt(100)

// RoundMoney rounds half away from zero to two places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// CalculateLineSubtotal returns round(quantity x unitPrice).
func CalculateLineSubtotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return RoundMoney(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// CalculateTaxAmount is tax-exclusive: round(subtotal x rate / 100).
func CalculateTaxAmount(subtotal decimal.Decimal, ratePercent decimal.Decimal) decimal.Decimal {
	if ratePercent.IsZero() || subtotal.IsZero() {
		return decimal.Zero
	}
	return RoundMoney(subtotal.Mul(ratePercent).Div(decimalOneHundred))
}

// CalculateRoundOff returns the adjustment that brings total to the nearest whole unit.
func CalculateRoundOff(total decimal.Decimal) decimal.Decimal {
	return total.Round(0).Sub(total)
}
