// Package paper implements exchange.Adapter entirely in memory: every
// order fills instantly at the caller's expected price, and balances
// are mutated directly with no network call. Activated by PAPER_TRADING.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
	gberrors "gridbot/pkg/errors"
)

// startingBalance is the USDT balance a wallet gets the first time the
// broker touches it, so a fresh paper wallet can buy without a separate
// funding step. Every other asset of a new wallet starts at zero.
var startingBalance = decimal.NewFromInt(10_000)

// Broker is the in-memory paper-trading exchange.Adapter.
type Broker struct {
	name domain.Exchange

	mu       sync.Mutex
	balances map[string]map[string]decimal.Decimal // wallet -> asset -> free
	orderSeq int64
	symbols  map[string]exchange.SymbolInfo
}

// New builds a paper broker that reports itself as name (the wallet's
// configured exchange), so the engine's symbol/precision checks still
// run against a realistic symbol table.
func New(name domain.Exchange) *Broker {
	return &Broker{
		name:     name,
		balances: make(map[string]map[string]decimal.Decimal),
		symbols:  defaultSymbols(),
	}
}

func (b *Broker) Name() domain.Exchange { return b.name }

func (b *Broker) FetchExchangeInfo(ctx context.Context) (map[string]exchange.SymbolInfo, error) {
	return b.symbols, nil
}

func (b *Broker) FetchAllTickerPrices(ctx context.Context) ([]exchange.Ticker, error) {
	out := make([]exchange.Ticker, 0, len(b.symbols))
	for _, info := range b.symbols {
		out = append(out, exchange.Ticker{Symbol: info.Symbol, Price: decimal.Zero, Time: time.Now()})
	}
	return out, nil
}

func (b *Broker) FetchSpotAccount(ctx context.Context, wallet string, us *domain.UserSettings) ([]exchange.AccountBalance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	assets := b.walletBalancesLocked(wallet)
	out := make([]exchange.AccountBalance, 0, len(assets))
	for asset, free := range assets {
		out = append(out, exchange.AccountBalance{Asset: asset, Free: free, Locked: decimal.Zero})
	}
	return out, nil
}

func (b *Broker) PlaceSpotBuy(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, quoteAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	info, ok := b.symbols[exchange.NormalizeSymbol(symbol)]
	if !ok {
		return nil, &gberrors.ValidationError{Field: "symbol", Reason: fmt.Sprintf("%s unknown to paper broker", symbol)}
	}
	if expectedPrice.IsZero() {
		return nil, &gberrors.ValidationError{Field: "expectedPrice", Reason: "expected price must be positive"}
	}

	rounded := exchange.RoundBuyQuoteAmount(quoteAmount, info.QuotePrecision)
	baseQty := rounded.Div(expectedPrice)

	b.mu.Lock()
	defer b.mu.Unlock()

	assets := b.walletBalancesLocked(wallet)
	if assets[info.QuoteAsset].LessThan(rounded) {
		return nil, &gberrors.InsufficientBalance{Currency: info.QuoteAsset, Available: assets[info.QuoteAsset].String(), Required: rounded.String()}
	}

	assets[info.QuoteAsset] = assets[info.QuoteAsset].Sub(rounded)
	assets[info.BaseAsset] = assets[info.BaseAsset].Add(baseQty)

	return &exchange.OrderResult{
		OrderID:     b.nextOrderIDLocked(),
		ExecutedQty: baseQty,
		AvgPrice:    expectedPrice,
		Status:      "FILLED",
	}, nil
}

func (b *Broker) PlaceSpotSell(ctx context.Context, wallet string, us *domain.UserSettings, symbol string, baseAmount, expectedPrice decimal.Decimal) (*exchange.OrderResult, error) {
	info, ok := b.symbols[exchange.NormalizeSymbol(symbol)]
	if !ok {
		return nil, &gberrors.ValidationError{Field: "symbol", Reason: fmt.Sprintf("%s unknown to paper broker", symbol)}
	}
	if expectedPrice.IsZero() {
		return nil, &gberrors.ValidationError{Field: "expectedPrice", Reason: "expected price must be positive"}
	}

	rounded := exchange.RoundSellQuantity(baseAmount, info.StepSize, expectedPrice)

	b.mu.Lock()
	defer b.mu.Unlock()

	assets := b.walletBalancesLocked(wallet)
	if assets[info.BaseAsset].LessThan(rounded) {
		return nil, &gberrors.InsufficientBalance{Currency: info.BaseAsset, Available: assets[info.BaseAsset].String(), Required: rounded.String()}
	}

	quoteValue := rounded.Mul(expectedPrice)
	assets[info.BaseAsset] = assets[info.BaseAsset].Sub(rounded)
	assets[info.QuoteAsset] = assets[info.QuoteAsset].Add(quoteValue)

	return &exchange.OrderResult{
		OrderID:     b.nextOrderIDLocked(),
		ExecutedQty: rounded,
		AvgPrice:    expectedPrice,
		Status:      "FILLED",
	}, nil
}

// walletBalancesLocked returns (creating if needed) the asset map for
// wallet. Caller must hold b.mu.
func (b *Broker) walletBalancesLocked(wallet string) map[string]decimal.Decimal {
	wallet = domain.NormalizeWallet(wallet)
	assets, ok := b.balances[wallet]
	if !ok {
		assets = map[string]decimal.Decimal{
			"USDT": startingBalance,
		}
		b.balances[wallet] = assets
	}
	return assets
}

func (b *Broker) nextOrderIDLocked() string {
	b.orderSeq++
	return fmt.Sprintf("paper-%d-%d", time.Now().UnixMilli(), b.orderSeq)
}

func defaultSymbols() map[string]exchange.SymbolInfo {
	entries := []exchange.SymbolInfo{
		{Symbol: "ASTERUSDT", BaseAsset: "ASTER", QuoteAsset: "USDT", Status: "TRADING", StepSize: decimal.NewFromFloat(0.01), TickSize: decimal.NewFromFloat(0.0001), QuotePrecision: 2, BasePrecision: 2},
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Status: "TRADING", StepSize: decimal.NewFromFloat(0.00001), TickSize: decimal.NewFromFloat(0.01), QuotePrecision: 2, BasePrecision: 5},
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Status: "TRADING", StepSize: decimal.NewFromFloat(0.0001), TickSize: decimal.NewFromFloat(0.01), QuotePrecision: 2, BasePrecision: 4},
		{Symbol: "BNBUSDT", BaseAsset: "BNB", QuoteAsset: "USDT", Status: "TRADING", StepSize: decimal.NewFromFloat(0.001), TickSize: decimal.NewFromFloat(0.01), QuotePrecision: 2, BasePrecision: 3},
	}
	out := make(map[string]exchange.SymbolInfo, len(entries))
	for _, e := range entries {
		out[exchange.NormalizeSymbol(e.Symbol)] = e
	}
	return out
}
