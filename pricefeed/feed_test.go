package pricefeed

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/pkg/logging"
)

type noopLogger struct{}

func (l *noopLogger) Debug(msg string, fields ...interface{})                  {}
func (l *noopLogger) Info(msg string, fields ...interface{})                   {}
func (l *noopLogger) Warn(msg string, fields ...interface{})                   {}
func (l *noopLogger) Error(msg string, fields ...interface{})                  {}
func (l *noopLogger) Fatal(msg string, fields ...interface{})                  {}
func (l *noopLogger) WithField(key string, value interface{}) logging.ILogger  { return l }
func (l *noopLogger) WithFields(fields map[string]interface{}) logging.ILogger { return l }

type stubAdapter struct {
	tickers []exchange.Ticker
	err     error
}

func (s *stubAdapter) Name() domain.Exchange { return domain.ExchangeAster }
func (s *stubAdapter) FetchExchangeInfo(ctx context.Context) (map[string]exchange.SymbolInfo, error) {
	return nil, nil
}
func (s *stubAdapter) FetchAllTickerPrices(ctx context.Context) ([]exchange.Ticker, error) {
	return s.tickers, s.err
}
func (s *stubAdapter) FetchSpotAccount(ctx context.Context, wallet string, us *domain.UserSettings) ([]exchange.AccountBalance, error) {
	return nil, nil
}
func (s *stubAdapter) PlaceSpotBuy(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, quoteAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	return nil, nil
}
func (s *stubAdapter) PlaceSpotSell(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, baseAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	return nil, nil
}

func TestRefreshOnlyKeepsDefaultAndExtraSymbols(t *testing.T) {
	adapter := &stubAdapter{tickers: []exchange.Ticker{
		{Symbol: "BTCUSDT", Price: decimal.NewFromInt(94000)},
		{Symbol: "SOLUSDT", Price: decimal.NewFromInt(200)}, // not in default list, not requested
		{Symbol: "ASTER-USDT", Price: decimal.NewFromInt(1)},
	}}

	f := New(&noopLogger{})
	require.NoError(t, f.Refresh(context.Background(), adapter, nil))

	assert.True(t, f.GetPrice("BTCUSDT", "wallet").Equal(decimal.NewFromInt(94000)))
	assert.True(t, f.GetPrice("ASTERUSDT", "wallet").Equal(decimal.NewFromInt(1)))
	assert.True(t, f.GetPrice("SOLUSDT", "wallet").IsZero())
}

func TestRefreshHonorsExtraSymbols(t *testing.T) {
	adapter := &stubAdapter{tickers: []exchange.Ticker{
		{Symbol: "DOGEUSDT", Price: decimal.NewFromFloat(0.1)},
	}}

	f := New(&noopLogger{})
	require.NoError(t, f.Refresh(context.Background(), adapter, []string{"DOGEUSDT"}))
	assert.True(t, f.GetPrice("DOGEUSDT", "wallet").Equal(decimal.NewFromFloat(0.1)))
}

func TestRefreshPropagatesAdapterError(t *testing.T) {
	adapter := &stubAdapter{err: assertErr}
	f := New(&noopLogger{})
	err := f.Refresh(context.Background(), adapter, nil)
	assert.Equal(t, assertErr, err)
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }

func TestGetPriceUnknownSymbolIsZero(t *testing.T) {
	f := New(&noopLogger{})
	assert.True(t, f.GetPrice("UNKNOWN", "wallet").IsZero())
}

func TestIsStaleForNeverRefreshedSymbol(t *testing.T) {
	f := New(&noopLogger{})
	assert.True(t, f.IsStale("BTCUSDT"))
}

func TestIsStaleAfterRefresh(t *testing.T) {
	adapter := &stubAdapter{tickers: []exchange.Ticker{{Symbol: "BTCUSDT", Price: decimal.NewFromInt(1)}}}
	f := New(&noopLogger{})
	require.NoError(t, f.Refresh(context.Background(), adapter, nil))
	assert.False(t, f.IsStale("BTCUSDT"))

	f.mu.Lock()
	q := f.quotes["BTCUSDT"]
	q.lastUpdate = time.Now().Add(-staleAfter - time.Second)
	f.quotes["BTCUSDT"] = q
	f.mu.Unlock()
	assert.True(t, f.IsStale("BTCUSDT"))
}

func TestSymbolsForOrdersDedups(t *testing.T) {
	orders := []domain.OrderSpec{
		{BaseAsset: "BTC", QuoteAsset: "USDT"},
		{BaseAsset: "BTC", QuoteAsset: "USDT"},
		{BaseAsset: "ETH", QuoteAsset: "USDT"},
	}
	got := SymbolsForOrders(orders)
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, got)
}
