package gridengine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridbot/domain"
)

// TestNextBuyTargetNeverExceedsFocus covers P5's buy half: the target
// the BUY gate compares against never sits above the focus it was
// derived from, for any trend row or focus price.
func TestNextBuyTargetNeverExceedsFocus(t *testing.T) {
	spec := scenarioSpec("p5")
	for _, focus := range []string{"1", "100", "94000", "250000"} {
		for trend := 0; trend <= maxTrend(spec); trend++ {
			got := NextBuyTarget(d(focus), trend, spec)
			require.False(t, got.GreaterThan(d(focus)), "focus=%s trend=%d got=%s", focus, trend, got)
		}
	}
}

// TestNextSellTargetNeverBelowFocus covers P5's sell half.
func TestNextSellTargetNeverBelowFocus(t *testing.T) {
	spec := scenarioSpec("p5")
	for _, focus := range []string{"1", "100", "94000", "250000"} {
		for trend := 0; trend <= maxTrend(spec); trend++ {
			got := NextSellTarget(d(focus), trend, spec)
			require.False(t, got.LessThan(d(focus)), "focus=%s trend=%d got=%s", focus, trend, got)
		}
	}
}

// TestBuyTrendCounterStaysWithinBounds covers P3: repeatedly buying
// (with a focus low enough to always clear the gate) never drives
// buyTrendCounter outside [0, maxTrend]: once maxTrend is reached the
// counter stays there rather than climbing past it (only the trend used
// for the next buy target drops back to 0).
func TestBuyTrendCounterStaysWithinBounds(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	spec := testSpec("p3")
	spec.TrendPercents = []domain.TrendPercent{
		{Trend: 0, BuyPercent: d("0.5"), SellPercent: d("0.5")},
		{Trend: 1, BuyPercent: d("0.5"), SellPercent: d("0.5")},
		{Trend: 2, BuyPercent: d("0.5"), SellPercent: d("0.5")},
	}
	seedSettings(t, st, spec)
	ctx := context.Background()

	state, err := eng.InitializeGridState(ctx, testWallet, spec)
	require.NoError(t, err)

	max := maxTrend(spec)
	price := d("94000")
	for i := 0; i < max+3; i++ {
		next, err := eng.ExecuteBuy(ctx, testWallet, price, spec, state)
		require.NoError(t, err)
		require.GreaterOrEqual(t, next.BuyTrendCounter, 0)
		require.LessOrEqual(t, next.BuyTrendCounter, max)
		state = next
	}
}

// TestProcessPriceNoOpWhenNothingMatches covers P6: ticking with a
// price that triggers no gate and no sweep leaves the persisted state
// unchanged apart from the last-price bookkeeping fields.
func TestProcessPriceNoOpWhenNothingMatches(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	spec := scenarioSpec("p6")
	seedSettings(t, st, spec)
	ctx := context.Background()

	before, err := eng.InitializeGridState(ctx, testWallet, spec)
	require.NoError(t, err)

	// 94000 sits exactly at focus: above nextBuyTarget (93530) and below
	// nextSellTarget (94470), so no gate fires and no position exists to
	// sweep.
	after, err := eng.ProcessPrice(ctx, testWallet, spec.ID, d("94000"), spec)
	require.NoError(t, err)

	require.True(t, after.CurrentFocusPrice.Equal(before.CurrentFocusPrice))
	require.Equal(t, before.BuyTrendCounter, after.BuyTrendCounter)
	require.Equal(t, before.SellTrendCounter, after.SellTrendCounter)
	require.True(t, after.NextBuyTarget.Equal(before.NextBuyTarget))
	require.True(t, after.NextSellTarget.Equal(before.NextSellTarget))
	require.Equal(t, before.OpenPositionIds, after.OpenPositionIds)
	require.Equal(t, before.OpenSellPositionIds, after.OpenSellPositionIds)
	require.True(t, after.TotalProfit.Equal(before.TotalProfit))
}

// TestTotalBoughtValueEqualsOpenPlusClosedBuyValue covers P8: after a
// buy and the close of that long, totalBoughtValue still equals the sum of
// currently-open longs' buyValue plus every closed long's buyValue.
func TestTotalBoughtValueEqualsOpenPlusClosedBuyValue(t *testing.T) {
	eng, st, _ := newTestEngine(t)
	spec := scenarioSpec("p8")
	seedSettings(t, st, spec)
	ctx := context.Background()

	_, err := eng.InitializeGridState(ctx, testWallet, spec)
	require.NoError(t, err)

	state, err := eng.ProcessPrice(ctx, testWallet, spec.ID, d("93500"), spec)
	require.NoError(t, err)
	require.Len(t, state.OpenPositionIds, 1)
	posID := state.OpenPositionIds[0]
	pos, err := st.Positions().FindByID(ctx, posID)
	require.NoError(t, err)

	state, err = eng.ProcessPrice(ctx, testWallet, spec.ID, pos.TargetSellPrice, spec)
	require.NoError(t, err)
	require.Empty(t, state.OpenPositionIds)

	var openSum, closedSum = decimal.Zero, decimal.Zero
	for _, id := range state.OpenPositionIds {
		p, err := st.Positions().FindByID(ctx, id)
		require.NoError(t, err)
		openSum = openSum.Add(p.BuyValue)
	}
	closed, err := st.Positions().FindByID(ctx, posID)
	require.NoError(t, err)
	closedSum = closedSum.Add(closed.BuyValue)

	require.True(t, state.TotalBoughtValue.Equal(openSum.Add(closedSum)), "totalBoughtValue=%s openSum=%s closedSum=%s", state.TotalBoughtValue, openSum, closedSum)
}
