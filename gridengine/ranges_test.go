package gridengine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gridbot/domain"
)

func TestMatchRangeFirstMatchWins(t *testing.T) {
	lo := d("100")
	hi := d("200")
	rows := []domain.RangeValue{
		{MinPrice: &lo, MaxPrice: &hi, Value: d("1")},
		{Value: d("2")}, // catch-all, must not shadow the first row
	}
	val, ok := matchRange(rows, nil, d("150"))
	assert.True(t, ok)
	assert.True(t, val.Equal(d("1")))

	val, ok = matchRange(rows, nil, d("500"))
	assert.True(t, ok)
	assert.True(t, val.Equal(d("2")))
}

func TestMatchRangeFallsBackToLegacyOnlyWhenRangeEmpty(t *testing.T) {
	legacy := []domain.LegacyValue{{Price: d("100"), Condition: domain.CondGreater, Value: d("9")}}

	val, ok := matchRange(nil, legacy, d("150"))
	assert.True(t, ok)
	assert.True(t, val.Equal(d("9")))

	rangeRows := []domain.RangeValue{{Value: d("1")}}
	val, ok = matchRange(rangeRows, legacy, d("150"))
	assert.True(t, ok)
	assert.True(t, val.Equal(d("1")), "range rows take precedence over legacy even though legacy also matches")
}

func TestMatchRangeNoMatch(t *testing.T) {
	_, ok := matchRange(nil, nil, d("1"))
	assert.False(t, ok)
}
