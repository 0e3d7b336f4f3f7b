package gridengine

import (
	"github.com/shopspring/decimal"

	"gridbot/decimalmath"
	"gridbot/domain"
)

// ShouldBuy implements spec.md §4.6.3's BUY gate. Returns false with a
// human-readable reason (for the trace sink) when any sub-check blocks.
func ShouldBuy(price decimal.Decimal, state *domain.GridState, spec *domain.OrderSpec) (bool, string) {
	cond := spec.BuyConditions

	if cond.PriceThreshold.IsPositive() && price.GreaterThan(cond.PriceThreshold) {
		if !(!cond.CheckThresholdIfProfitable && state.TotalProfit.IsPositive()) {
			return false, "buy price threshold"
		}
	}

	target := state.NextBuyTarget
	if target.IsZero() {
		target = NextBuyTarget(state.CurrentFocusPrice, state.BuyTrendCounter, spec)
	}
	if price.GreaterThan(target) {
		return false, "price above next buy target"
	}

	if !swingGatePasses(state.CurrentFocusPrice, price, spec.BuySwingPercent) {
		return false, "buy swing gate"
	}

	return true, ""
}

// ShouldSellShort implements spec.md §4.6.3's SELL-short gate, the
// mirror image of ShouldBuy.
func ShouldSellShort(price decimal.Decimal, state *domain.GridState, spec *domain.OrderSpec) (bool, string) {
	cond := spec.SellConditions

	if cond.PriceThreshold.IsPositive() && price.LessThan(cond.PriceThreshold) {
		if !(!cond.CheckThresholdIfProfitable && state.TotalProfit.IsPositive()) {
			return false, "sell price threshold"
		}
	}

	target := state.NextSellTarget
	if target.IsZero() {
		target = NextSellTarget(state.CurrentFocusPrice, state.SellTrendCounter, spec)
	}
	if price.LessThan(target) {
		return false, "price below next sell target"
	}

	if !swingGatePasses(state.CurrentFocusPrice, price, spec.SellSwingPercent) {
		return false, "sell swing gate"
	}

	return true, ""
}

// longCloseThresholdBlocks implements the long-close threshold applied
// once before the long-close sweep, per spec.md §4.6.3.
func longCloseThresholdBlocks(price decimal.Decimal, state *domain.GridState, spec *domain.OrderSpec) bool {
	cond := spec.SellConditions
	if !cond.PriceThreshold.IsPositive() {
		return false
	}
	if !price.LessThan(cond.PriceThreshold) {
		return false
	}
	return !(!cond.CheckThresholdIfProfitable && state.TotalProfit.IsPositive())
}

// swingGatePasses reports whether |focus-price|/focus*100 is at least
// the matching swing row's value. A missing row, or a row whose value
// is zero, passes trivially.
func swingGatePasses(focus, price decimal.Decimal, rows []domain.RangeValue) bool {
	if focus.IsZero() {
		return true
	}

	val, ok := matchRange(rows, nil, price)
	if !ok || val.IsZero() {
		return true
	}

	delta := decimalmath.PercentDelta(price, focus)
	return delta.GreaterThanOrEqual(val)
}
