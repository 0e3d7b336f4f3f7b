package gridengine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"gridbot/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestNextBuyTargetDefaultPercent(t *testing.T) {
	spec := &domain.OrderSpec{MinProfitPercent: d("0.5")}
	// S1: 94000 - 94000*0.5/100 = 93530
	assert.True(t, NextBuyTarget(d("94000"), 0, spec).Equal(d("93530")))
}

func TestNextSellTargetDefaultPercent(t *testing.T) {
	spec := &domain.OrderSpec{MinProfitPercent: d("0.5")}
	assert.True(t, NextSellTarget(d("94000"), 0, spec).Equal(d("94470")))
}

func TestTrendPercentPicksGreatestNotExceeding(t *testing.T) {
	spec := &domain.OrderSpec{
		TrendPercents: []domain.TrendPercent{
			{Trend: 0, BuyPercent: d("0.5"), SellPercent: d("0.5")},
			{Trend: 2, BuyPercent: d("1.0"), SellPercent: d("1.0")},
			{Trend: 5, BuyPercent: d("2.0"), SellPercent: d("2.0")},
		},
	}
	assert.True(t, trendPercent(0, true, spec).Equal(d("0.5")))
	assert.True(t, trendPercent(1, true, spec).Equal(d("0.5")))
	assert.True(t, trendPercent(2, true, spec).Equal(d("1.0")))
	assert.True(t, trendPercent(4, true, spec).Equal(d("1.0")))
	assert.True(t, trendPercent(10, true, spec).Equal(d("2.0")))
}

func TestTrendPercentFallsBackToMinProfitThenDefault(t *testing.T) {
	withMinProfit := &domain.OrderSpec{MinProfitPercent: d("0.75")}
	assert.True(t, trendPercent(0, true, withMinProfit).Equal(d("0.75")))

	bare := &domain.OrderSpec{}
	assert.True(t, trendPercent(0, true, bare).Equal(defaultTrendPercent))
}

func TestMaxTrend(t *testing.T) {
	assert.Equal(t, 0, maxTrend(&domain.OrderSpec{}))
	spec := &domain.OrderSpec{TrendPercents: []domain.TrendPercent{{Trend: 3}, {Trend: 7}, {Trend: 1}}}
	assert.Equal(t, 7, maxTrend(spec))
}
