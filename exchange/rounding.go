package exchange

import (
	"github.com/shopspring/decimal"

	"gridbot/decimalmath"
)

// minNotionalFloor is the exchange-enforced minimum order value in
// USDT; a SELL quantity that floors below it is bumped one step up.
var minNotionalFloor = decimal.NewFromInt(5)

// RoundSellQuantity applies spec's SELL step-size rounding: floor to
// stepSize, then bump one step if the floored quantity's notional
// value would fall under the exchange minimum.
func RoundSellQuantity(qty, stepSize, expectedPrice decimal.Decimal) decimal.Decimal {
	if stepSize.IsZero() {
		return qty
	}

	steps := qty.Div(stepSize).Truncate(0)
	rounded := steps.Mul(stepSize)

	if rounded.Mul(expectedPrice).LessThan(minNotionalFloor) {
		rounded = steps.Add(decimal.NewFromInt(1)).Mul(stepSize)
	}

	return rounded
}

// RoundBuyQuoteAmount rounds a quote-currency BUY amount down to
// quotePrecision digits, falling back to 2 digits (spec's stable-quote
// default) when the precision is unknown.
func RoundBuyQuoteAmount(amount decimal.Decimal, quotePrecision int32) decimal.Decimal {
	if quotePrecision <= 0 {
		quotePrecision = 2
	}
	return decimalmath.FloorTo(amount, quotePrecision)
}
