package gridengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridbot/domain"
)

func TestCalculateTransactionValueBase(t *testing.T) {
	spec := &domain.OrderSpec{
		BuyConditions: domain.SideConditions{MinValuePer1Percent: d("200")},
	}
	// base = 200 * 0.5 = 100
	val := calculateTransactionValue(d("94000"), 0, true, nil, spec)
	assert.True(t, val.Equal(d("100")))
}

func TestCalculateTransactionValueDefaultMinValuePer1Percent(t *testing.T) {
	spec := &domain.OrderSpec{MinProfitPercent: d("0.5")}
	// defaultMinValuePer1Percent (200) * 0.5 = 100
	val := calculateTransactionValue(d("94000"), 0, true, nil, spec)
	assert.True(t, val.Equal(d("100")))
}

func TestCalculateTransactionValueAdditionalBump(t *testing.T) {
	spec := &domain.OrderSpec{
		BuyConditions:       domain.SideConditions{MinValuePer1Percent: d("200")},
		AdditionalBuyValues: []domain.RangeValue{{Value: d("50")}},
	}
	effPct := d("0.5")
	// base = 200*0.5=100, bump = 50*0.5=25 -> 125
	val := calculateTransactionValue(d("94000"), 0, true, &effPct, spec)
	assert.True(t, val.Equal(d("125")))
}

func TestCalculateTransactionValueCappedByMaxPerTransaction(t *testing.T) {
	capValue := d("50")
	spec := &domain.OrderSpec{
		BuyConditions:       domain.SideConditions{MinValuePer1Percent: d("200")},
		MaxBuyPerTransaction: []domain.RangeValue{{Value: capValue}},
	}
	effPct := d("0.5")
	// base = 100, capped to 50
	val := calculateTransactionValue(d("94000"), 0, true, &effPct, spec)
	assert.True(t, val.Equal(d("50")))
}

func TestCalculateTransactionValueUsesEffectiveTrendPercentOverride(t *testing.T) {
	spec := &domain.OrderSpec{BuyConditions: domain.SideConditions{MinValuePer1Percent: d("200")}}
	effPct := d("1.0")
	val := calculateTransactionValue(d("94000"), 0, true, &effPct, spec)
	assert.True(t, val.Equal(d("200")))
}
