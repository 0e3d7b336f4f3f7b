// Package pricefeed holds the last-known price per symbol, refreshed
// by polling an exchange.Adapter rather than a websocket stream.
package pricefeed

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/pkg/logging"
)

// staleAfter is how long a quote may go unrefreshed before IsStale
// reports true.
const staleAfter = 30 * time.Second

// defaultSymbols is always refreshed regardless of which orders are
// active, so the UI and gates always have a baseline quote available.
var defaultSymbols = []string{"ASTERUSDT", "BTCUSDT", "ETHUSDT", "BNBUSDT"}

type quote struct {
	price      decimal.Decimal
	changePct  *decimal.Decimal
	lastUpdate time.Time
}

// Feed is the per-symbol last-price cache shared by the scheduler and
// the grid engine.
type Feed struct {
	mu     sync.RWMutex
	quotes map[string]quote
	logger logging.ILogger
}

func New(logger logging.ILogger) *Feed {
	return &Feed{quotes: make(map[string]quote), logger: logger}
}

// Refresh fetches tickers from adapter for the default symbol allow-list
// plus extraSymbols (typically the caller's currently active orders'
// symbols), and replaces their cached quotes.
func (f *Feed) Refresh(ctx context.Context, adapter exchange.Adapter, extraSymbols []string) error {
	tickers, err := adapter.FetchAllTickerPrices(ctx)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool, len(defaultSymbols)+len(extraSymbols))
	for _, s := range defaultSymbols {
		wanted[exchange.NormalizeSymbol(s)] = true
	}
	for _, s := range extraSymbols {
		wanted[exchange.NormalizeSymbol(s)] = true
	}

	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range tickers {
		norm := exchange.NormalizeSymbol(t.Symbol)
		if !wanted[norm] {
			continue
		}
		f.quotes[norm] = quote{price: t.Price, lastUpdate: now}
	}

	return nil
}

// GetPrice returns the last known price for symbol, or zero if unknown.
// wallet is accepted for interface symmetry with the per-wallet caches
// elsewhere (price is exchange-global, not wallet-scoped).
func (f *Feed) GetPrice(symbol string, wallet string) decimal.Decimal {
	_ = wallet
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[exchange.NormalizeSymbol(symbol)]
	if !ok {
		return decimal.Zero
	}
	return q.price
}

// IsStale reports whether symbol's last update is older than 30s, or
// true if the symbol has never been refreshed.
func (f *Feed) IsStale(symbol string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[exchange.NormalizeSymbol(symbol)]
	if !ok {
		return true
	}
	return time.Since(q.lastUpdate) > staleAfter
}

// SymbolsForOrders returns the distinct trading symbols of the given
// specs, for use as Refresh's extraSymbols argument.
func SymbolsForOrders(orders []domain.OrderSpec) []string {
	seen := make(map[string]bool, len(orders))
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		sym := o.Symbol()
		if seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
