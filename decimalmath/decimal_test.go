package decimalmath

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestFloorTo(t *testing.T) {
	assert.True(t, FloorTo(d("93.989"), 2).Equal(d("93.98")))
	assert.True(t, FloorTo(d("93.98"), 2).Equal(d("93.98")))
	assert.True(t, FloorTo(d("100"), 2).Equal(d("100")))
}

func TestCeilTo(t *testing.T) {
	assert.True(t, CeilTo(d("93988.001"), 2).Equal(d("93988.01")))
	assert.True(t, CeilTo(d("93988.00"), 2).Equal(d("93988.00")))
	// spec S3: ceil(93500*1.005) = 93967.50
	assert.True(t, CeilTo(d("93500").Mul(d("1.005")), 2).Equal(d("93967.50")))
}

func TestPercentOf(t *testing.T) {
	assert.True(t, PercentOf(d("94000"), d("0.5")).Equal(d("470")))
}

func TestPercentDelta(t *testing.T) {
	// S1: |94000-93500|/94000*100 ~= 0.5319...
	got := PercentDelta(d("93500"), d("94000"))
	assert.True(t, got.GreaterThanOrEqual(d("0.53")))
	assert.True(t, got.LessThan(d("0.54")))
}

func TestPercentDeltaZeroBase(t *testing.T) {
	assert.True(t, PercentDelta(d("1"), decimal.Zero).IsZero())
}

func TestMaxMin(t *testing.T) {
	assert.True(t, Max(d("1"), d("2")).Equal(d("2")))
	assert.True(t, Min(d("1"), d("2")).Equal(d("1")))
}
