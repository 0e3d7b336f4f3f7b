// Package walletview is the in-memory wallet → exchange → currency
// balance cache every gate and sizing computation reads from, kept in
// sync with the exchange by periodic Sync calls.
package walletview

import (
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
)

// paperSeedBalance funds a never-before-seen paper wallet so a fresh
// grid can start trading without an explicit funding step.
var paperSeedBalance = decimal.NewFromInt(10_000)

type walletKey struct {
	wallet   string
	exchange domain.Exchange
}

// View is the two-level wallet → exchange → currency balance cache.
type View struct {
	mu       sync.RWMutex
	balances map[walletKey]map[string]decimal.Decimal
	paper    bool
}

// New builds an empty View. When paper is true, GetBalance seeds any
// previously-unseen (wallet, exchange) pair with a default USDT
// balance on its first read instead of leaving it empty.
func New(paper bool) *View {
	return &View{balances: make(map[walletKey]map[string]decimal.Decimal), paper: paper}
}

// Sync replaces the balance set for (wallet, exchange) atomically and
// returns the WalletBalance rows to project into UserSettings.Wallet
// (the display cache).
func (v *View) Sync(wallet string, ex domain.Exchange, balances []exchange.AccountBalance) []domain.WalletBalance {
	wallet = domain.NormalizeWallet(wallet)
	key := walletKey{wallet: wallet, exchange: ex}

	currencies := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		currencies[b.Asset] = b.Free
	}

	v.mu.Lock()
	v.balances[key] = currencies
	v.mu.Unlock()

	display := make([]domain.WalletBalance, 0, len(balances))
	for _, b := range balances {
		display = append(display, domain.WalletBalance{Currency: b.Asset, Balance: b.Free, Reserved: b.Locked})
	}
	return display
}

// GetBalance returns the free balance of currency for (wallet,
// exchange), seeding a paper wallet on first touch if configured, or
// zero if unknown.
func (v *View) GetBalance(wallet string, currency string, ex domain.Exchange) decimal.Decimal {
	wallet = domain.NormalizeWallet(wallet)
	key := walletKey{wallet: wallet, exchange: ex}

	v.mu.RLock()
	currencies, ok := v.balances[key]
	v.mu.RUnlock()

	if !ok {
		if !v.paper {
			return decimal.Zero
		}
		currencies = v.seedPaperWallet(key)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	bal, ok := currencies[currency]
	if !ok {
		return decimal.Zero
	}
	return bal
}

func (v *View) seedPaperWallet(key walletKey) map[string]decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	if existing, ok := v.balances[key]; ok {
		return existing
	}
	seeded := map[string]decimal.Decimal{"USDT": paperSeedBalance}
	v.balances[key] = seeded
	return seeded
}
