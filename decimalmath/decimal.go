// Package decimalmath is the single place arbitrary-precision arithmetic
// flows through. Every engine computation — targets, sizing, profit —
// calls into here instead of touching decimal.Decimal rounding directly,
// so a directed-rounding bug has one place to live and one place to fix.
package decimalmath

import "github.com/shopspring/decimal"

// Mode selects a directed rounding behavior. Unlike decimal.Decimal's
// Round(), which rounds half away from zero, the grid engine needs floor for buy
// targets and ceil for sell targets (spec §4.6.1), so callers say which
// they mean.
type Mode int

const (
	RoundDown Mode = iota
	RoundUp
	RoundHalfUp
)

// ToDecimalPlaces rounds d to places decimal digits using the given mode.
func ToDecimalPlaces(d decimal.Decimal, places int32, mode Mode) decimal.Decimal {
	switch mode {
	case RoundDown:
		return d.Truncate(places)
	case RoundUp:
		return roundUp(d, places)
	case RoundHalfUp:
		return d.Round(places)
	default:
		return d.Truncate(places)
	}
}

// roundUp rounds toward positive infinity (ceiling) unless d is already
// exact at places; negative values are therefore truncated toward zero.
func roundUp(d decimal.Decimal, places int32) decimal.Decimal {
	truncated := d.Truncate(places)
	if truncated.Equal(d) {
		return truncated
	}
	step := decimal.New(1, -places)
	if d.IsNegative() {
		return truncated
	}
	return truncated.Add(step)
}

// FloorTo rounds down to places digits. A thin, explicit alias used at
// every buy-target / buy-sizing call site so the intent reads at the
// call, not just at the Mode constant.
func FloorTo(d decimal.Decimal, places int32) decimal.Decimal {
	return ToDecimalPlaces(d, places, RoundDown)
}

// CeilTo rounds up to places digits; used at every sell-target call site.
func CeilTo(d decimal.Decimal, places int32) decimal.Decimal {
	return ToDecimalPlaces(d, places, RoundUp)
}

// Add is a readability alias over decimal.Decimal.Add, kept so engine
// code reads as a sequence of decimalmath calls rather than mixing
// direct decimal.Decimal method calls with package-level helpers.
func Add(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }

// Sub subtracts b from a.
func Sub(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) }

// Mul multiplies a and b.
func Mul(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) }

// Div divides a by b. Panics if b is zero, matching decimal.Decimal's
// own Div behavior — callers must guard against zero denominators
// explicitly (e.g. a zero focus price) before calling.
func Div(a, b decimal.Decimal) decimal.Decimal { return a.Div(b) }

// PercentOf returns base * pct / 100.
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}

// Cmp is a passthrough to decimal.Decimal.Cmp for call-site symmetry
// with the other helpers in this package.
func Cmp(a, b decimal.Decimal) int { return a.Cmp(b) }

// Abs returns the absolute value of d.
func Abs(d decimal.Decimal) decimal.Decimal { return d.Abs() }

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// PercentDelta returns |a-b| / b * 100, used by swing-gate and
// effective-trend-percent computations. Returns zero if b is zero.
func PercentDelta(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Sub(b).Abs().Mul(decimal.NewFromInt(100)).Div(b)
}
