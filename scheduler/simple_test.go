package scheduler

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/exchange/paper"
	"gridbot/gridengine"
	"gridbot/pkg/logging"
	"gridbot/pricefeed"
	"gridbot/store/memory"
	"gridbot/walletview"
)

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, fields ...interface{})                  {}
func (l *noopLogger) Info(msg string, fields ...interface{})                   {}
func (l *noopLogger) Warn(msg string, fields ...interface{})                   {}
func (l *noopLogger) Error(msg string, fields ...interface{})                  {}
func (l *noopLogger) Fatal(msg string, fields ...interface{})                  {}
func (l *noopLogger) WithField(key string, value interface{}) logging.ILogger  { return l }
func (l *noopLogger) WithFields(fields map[string]interface{}) logging.ILogger { return l }

func TestIntervalFromEnvDefaultsWhenUnset(t *testing.T) {
	os.Unsetenv("GRID_SCHEDULER_INTERVAL_SEC")
	require.Equal(t, DefaultInterval, IntervalFromEnv())
}

func TestIntervalFromEnvClampsToRange(t *testing.T) {
	t.Setenv("GRID_SCHEDULER_INTERVAL_SEC", "0")
	require.Equal(t, 1*time.Second, IntervalFromEnv())

	t.Setenv("GRID_SCHEDULER_INTERVAL_SEC", "90")
	require.Equal(t, 59*time.Second, IntervalFromEnv())

	t.Setenv("GRID_SCHEDULER_INTERVAL_SEC", "7")
	require.Equal(t, 7*time.Second, IntervalFromEnv())
}

func TestIntervalFromEnvDefaultsOnParseFailure(t *testing.T) {
	t.Setenv("GRID_SCHEDULER_INTERVAL_SEC", "not-a-number")
	require.Equal(t, DefaultInterval, IntervalFromEnv())
}

const testWallet = "0xabc"

func testSpec(id string) *domain.OrderSpec {
	return &domain.OrderSpec{
		ID:               id,
		IsActive:         true,
		Exchange:         domain.ExchangeAster,
		BaseAsset:        "BTC",
		QuoteAsset:       "USDT",
		MinProfitPercent: decimal.NewFromFloat(0.5),
		FocusPrice:       decimal.NewFromInt(94000),
		Buy:              domain.SideWalletPolicy{Currency: "USDT", Mode: domain.ModeWalletLimit},
		Sell:             domain.SideWalletPolicy{Currency: "BTC", Mode: domain.ModeWalletLimit},
		BuyConditions:    domain.SideConditions{MinValuePer1Percent: decimal.NewFromInt(200)},
		SellConditions:   domain.SideConditions{MinValuePer1Percent: decimal.NewFromInt(200)},
	}
}

// TestRunTickOpensLongOnSeededActiveGrid drives one scheduler tick end
// to end over the in-memory store and paper broker: a seeded active
// grid, with the feed already primed below the buy target, must open a
// position during runTick without a live price source.
func TestRunTickOpensLongOnSeededActiveGrid(t *testing.T) {
	st := memory.New()
	wallets := walletview.New(true)
	adapters := map[domain.Exchange]exchange.Adapter{
		domain.ExchangeAster: paper.New(domain.ExchangeAster),
	}
	eng := gridengine.New(st, adapters, wallets, &noopLogger{})
	feed := pricefeed.New(&noopLogger{})

	spec := testSpec("order-1")
	ctx := context.Background()
	require.NoError(t, st.UserSettings().Save(ctx, &domain.UserSettings{
		WalletAddress: testWallet,
		Exchange:      domain.ExchangeAster,
		Orders:        []domain.OrderSpec{*spec},
	}))
	_, err := eng.InitializeGridState(ctx, testWallet, spec)
	require.NoError(t, err)

	// The scheduler's own adapter set drives price refresh; keep it
	// separate from the engine's execution adapter (paper quotes
	// FetchAllTickerPrices at zero, which would mask this fixture).
	schedAdapters := map[domain.Exchange]exchange.Adapter{
		domain.ExchangeAster: &primedAdapter{price: decimal.NewFromInt(93500)},
	}
	sched := NewSimple(st, eng, feed, wallets, schedAdapters, time.Second, &noopLogger{})
	sched.runTick(ctx)

	state, err := st.GridStates().FindByWalletAndOrderID(ctx, testWallet, spec.ID)
	require.NoError(t, err)
	require.Len(t, state.OpenPositionIds, 1)
}

// TestRunTickDereferencesOrphanedGridState covers the scheduler's
// dereference path: a GridState with no owning UserSettings row gets
// marked inactive instead of erroring.
func TestRunTickDereferencesOrphanedGridState(t *testing.T) {
	st := memory.New()
	wallets := walletview.New(true)
	adapters := map[domain.Exchange]exchange.Adapter{
		domain.ExchangeAster: paper.New(domain.ExchangeAster),
	}
	eng := gridengine.New(st, adapters, wallets, &noopLogger{})
	feed := pricefeed.New(&noopLogger{})

	orphan := &domain.GridState{WalletAddress: testWallet, OrderID: "orphan-1", IsActive: true}
	require.NoError(t, st.GridStates().Save(context.Background(), testWallet, orphan.OrderID, orphan))

	sched := NewSimple(st, eng, feed, wallets, adapters, time.Second, &noopLogger{})
	sched.runTick(context.Background())

	got, err := st.GridStates().FindByWalletAndOrderID(context.Background(), testWallet, "orphan-1")
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

type primedAdapter struct {
	price decimal.Decimal
}

func (p *primedAdapter) Name() domain.Exchange { return domain.ExchangeAster }
func (p *primedAdapter) FetchExchangeInfo(ctx context.Context) (map[string]exchange.SymbolInfo, error) {
	return nil, nil
}
func (p *primedAdapter) FetchAllTickerPrices(ctx context.Context) ([]exchange.Ticker, error) {
	return []exchange.Ticker{{Symbol: "BTCUSDT", Price: p.price}}, nil
}
func (p *primedAdapter) FetchSpotAccount(ctx context.Context, wallet string, us *domain.UserSettings) ([]exchange.AccountBalance, error) {
	return []exchange.AccountBalance{{Asset: "USDT", Free: decimal.NewFromInt(10_000)}}, nil
}
func (p *primedAdapter) PlaceSpotBuy(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, quoteAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	return nil, nil
}
func (p *primedAdapter) PlaceSpotSell(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, baseAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	return nil, nil
}
