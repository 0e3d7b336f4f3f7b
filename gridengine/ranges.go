package gridengine

import (
	"github.com/shopspring/decimal"

	"gridbot/domain"
)

// matchRange returns the value of the first row in rangeRows matching
// price (insertion order, first match wins), falling back to legacyRows
// only when rangeRows yields no match — legacyRows rows are honored per
// spec only when a row sets neither minPrice nor maxPrice, which is
// exactly what RangeValue.Match/LegacyValue.Match formalize: a
// RangeValue with both bounds nil matches every price, so callers must
// keep legacy rows in a separate slice rather than mixed into rangeRows.
func matchRange(rangeRows []domain.RangeValue, legacyRows []domain.LegacyValue, price decimal.Decimal) (decimal.Decimal, bool) {
	for _, row := range rangeRows {
		if row.Match(price) {
			return row.Value, true
		}
	}
	for _, row := range legacyRows {
		if row.Match(price) {
			return row.Value, true
		}
	}
	return decimal.Zero, false
}
