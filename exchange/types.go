// Package exchange defines the adapter contract every venue
// (Aster, BingX, paper trading) implements, plus the shared base that
// handles credential resolution and exchange-info caching.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/domain"
)

// SymbolInfo is the per-symbol precision and tradability data returned
// by FetchExchangeInfo.
type SymbolInfo struct {
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	Status         string
	StepSize       decimal.Decimal
	TickSize       decimal.Decimal
	QuotePrecision int32
	BasePrecision  int32
	MinNotional    decimal.Decimal
}

// IsTrading reports whether the exchange currently accepts orders for
// this symbol.
func (s SymbolInfo) IsTrading() bool {
	return s.Status == "TRADING"
}

// AccountBalance is one normalized balance row from FetchSpotAccount,
// after BingX's coin/available/frozen naming has been mapped onto
// Aster's asset/free/locked shape.
type AccountBalance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// OrderResult is the outcome of a successful PlaceOrder call.
type OrderResult struct {
	OrderID     string
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal
	Status      string
}

// Ticker is one symbol's last price, as returned by FetchAllTickerPrices.
type Ticker struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

// Adapter is the capability set every exchange variant (and the paper
// broker) implements.
type Adapter interface {
	Name() domain.Exchange

	FetchExchangeInfo(ctx context.Context) (map[string]SymbolInfo, error)
	FetchAllTickerPrices(ctx context.Context) ([]Ticker, error)
	FetchSpotAccount(ctx context.Context, wallet string, us *domain.UserSettings) ([]AccountBalance, error)

	// PlaceSpotBuy submits a MARKET BUY sized by quote amount.
	PlaceSpotBuy(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, quoteAmount, expectedPrice decimal.Decimal) (*OrderResult, error)
	// PlaceSpotSell submits a MARKET SELL sized by base amount.
	PlaceSpotSell(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, baseAmount, expectedPrice decimal.Decimal) (*OrderResult, error)
}
