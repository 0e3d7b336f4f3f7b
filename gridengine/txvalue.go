package gridengine

import (
	"github.com/shopspring/decimal"

	"gridbot/decimalmath"
	"gridbot/domain"
)

// defaultMinValuePer1Percent is used when an order's buyConditions or
// sellConditions doesn't set minValuePer1Percent.
var defaultMinValuePer1Percent = decimal.NewFromInt(200)

// calculateTransactionValue implements spec.md §4.6.2: base value from
// minValuePer1Percent × trendPct, bumped by the first matching
// additional-value row, then capped by the first matching
// max-per-transaction row.
func calculateTransactionValue(price decimal.Decimal, trend int, isBuy bool, effectiveTrendPercent *decimal.Decimal, spec *domain.OrderSpec) decimal.Decimal {
	trendPct := trendPercent(trend, isBuy, spec)
	if effectiveTrendPercent != nil {
		trendPct = *effectiveTrendPercent
	}

	minValuePer1Percent := sideMinValuePer1Percent(isBuy, spec)
	base := minValuePer1Percent.Mul(trendPct)

	additional, legacyAdditional := sideAdditionalValues(isBuy, spec)
	if val, ok := matchRange(additional, legacyAdditional, price); ok {
		base = base.Add(val.Mul(trendPct))
	}

	maxPerTx := sideMaxPerTransaction(isBuy, spec)
	if val, ok := matchRange(maxPerTx, nil, price); ok && base.GreaterThan(val) {
		base = val
	}

	return decimalmath.FloorTo(base, domain.PriceScale)
}

func sideMinValuePer1Percent(isBuy bool, spec *domain.OrderSpec) decimal.Decimal {
	cond := spec.SellConditions
	if isBuy {
		cond = spec.BuyConditions
	}
	if cond.MinValuePer1Percent.IsPositive() {
		return cond.MinValuePer1Percent
	}
	return defaultMinValuePer1Percent
}

func sideAdditionalValues(isBuy bool, spec *domain.OrderSpec) ([]domain.RangeValue, []domain.LegacyValue) {
	if isBuy {
		return spec.AdditionalBuyValues, spec.LegacyBuyValues
	}
	return spec.AdditionalSellValues, spec.LegacySellValues
}

func sideMaxPerTransaction(isBuy bool, spec *domain.OrderSpec) []domain.RangeValue {
	if isBuy {
		return spec.MaxBuyPerTransaction
	}
	return spec.MaxSellPerTransaction
}
