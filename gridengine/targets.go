// Package gridengine is the core decision logic of the grid bot: pure
// target/gate computations here, persisted state and exchange I/O
// confined to execute.go and engine.go.
package gridengine

import (
	"github.com/shopspring/decimal"

	"gridbot/decimalmath"
	"gridbot/domain"
)

// defaultTrendPercent is used when an order defines no trendPercents
// rows and no minProfitPercent either.
var defaultTrendPercent = decimal.NewFromFloat(0.5)

// trendPercent finds the row in spec.TrendPercents with the greatest
// trend value not exceeding the given trend, and returns its
// buy/sell percent. Falls back to spec.MinProfitPercent, then 0.5.
func trendPercent(trend int, isBuy bool, spec *domain.OrderSpec) decimal.Decimal {
	var best *domain.TrendPercent
	for i := range spec.TrendPercents {
		row := &spec.TrendPercents[i]
		if row.Trend > trend {
			continue
		}
		if best == nil || row.Trend > best.Trend {
			best = row
		}
	}

	if best != nil {
		if isBuy {
			return best.BuyPercent
		}
		return best.SellPercent
	}

	if spec.MinProfitPercent.IsPositive() {
		return spec.MinProfitPercent
	}
	return defaultTrendPercent
}

// maxTrend returns the greatest trend value configured, or 0 if the
// order defines no trendPercents rows.
func maxTrend(spec *domain.OrderSpec) int {
	max := 0
	for _, row := range spec.TrendPercents {
		if row.Trend > max {
			max = row.Trend
		}
	}
	return max
}

// NextBuyTarget computes the next BUY trigger price: focus reduced by
// trendPercent, rounded DOWN to PriceScale.
func NextBuyTarget(focus decimal.Decimal, trend int, spec *domain.OrderSpec) decimal.Decimal {
	pct := trendPercent(trend, true, spec)
	target := focus.Sub(decimalmath.PercentOf(focus, pct))
	return decimalmath.FloorTo(target, domain.PriceScale)
}

// NextSellTarget computes the next SELL trigger price: focus increased
// by trendPercent, rounded UP to PriceScale.
func NextSellTarget(focus decimal.Decimal, trend int, spec *domain.OrderSpec) decimal.Decimal {
	pct := trendPercent(trend, false, spec)
	target := focus.Add(decimalmath.PercentOf(focus, pct))
	return decimalmath.CeilTo(target, domain.PriceScale)
}
