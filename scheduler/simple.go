package scheduler

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/gridengine"
	"gridbot/pkg/concurrency"
	"gridbot/pkg/logging"
	"gridbot/pricefeed"
	"gridbot/store"
	"gridbot/walletview"
)

// DefaultInterval is used when GRID_SCHEDULER_INTERVAL_SEC is unset.
const DefaultInterval = 1 * time.Second

// IntervalFromEnv reads GRID_SCHEDULER_INTERVAL_SEC, clamped to [1,59]
// seconds, defaulting to DefaultInterval on absence or parse failure.
func IntervalFromEnv() time.Duration {
	raw := os.Getenv("GRID_SCHEDULER_INTERVAL_SEC")
	if raw == "" {
		return DefaultInterval
	}
	sec, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultInterval
	}
	if sec < 1 {
		sec = 1
	}
	if sec > 59 {
		sec = 59
	}
	return time.Duration(sec) * time.Second
}

// Simple is the default, Store-transaction-based scheduler: a single
// fixed-interval ticker fans ProcessOrder calls for every active
// GridState out across a bounded worker pool, one decision round per
// tick, never two rounds overlapping (spec.md §4.7).
type Simple struct {
	store    store.Store
	engine   *gridengine.Engine
	feed     *pricefeed.Feed
	wallets  *walletview.View
	adapters map[domain.Exchange]exchange.Adapter
	interval time.Duration
	logger   logging.ILogger

	pool *concurrency.WorkerPool
	lock KeyedLock

	tickMu            sync.Mutex
	lastGlobalRefresh time.Time
}

// NewSimple builds a Simple scheduler. adapters must contain one
// exchange.Adapter per domain.Exchange any active order may trade on.
func NewSimple(st store.Store, engine *gridengine.Engine, feed *pricefeed.Feed, wallets *walletview.View, adapters map[domain.Exchange]exchange.Adapter, interval time.Duration, logger logging.ILogger) *Simple {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Simple{
		store:    st,
		engine:   engine,
		feed:     feed,
		wallets:  wallets,
		adapters: adapters,
		interval: interval,
		logger:   logger.WithField("component", "scheduler"),
		pool: concurrency.NewWorkerPool(concurrency.PoolConfig{
			Name:       "scheduler",
			MaxWorkers: 10,
		}, logger),
	}
}

// Run implements bootstrap.Runner: tick until ctx is cancelled.
func (s *Simple) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.pool.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.tickMu.TryLock() {
				// previous tick still in flight; skip this one.
				continue
			}
			s.runTick(ctx)
			s.tickMu.Unlock()
		}
	}
}

type resolvedOrder struct {
	state  *domain.GridState
	wallet string
	spec   *domain.OrderSpec
}

func (s *Simple) runTick(ctx context.Context) {
	states, err := s.store.GridStates().FindAllActive(ctx)
	if err != nil {
		s.logger.Error("load active grid states", "error", err)
		return
	}
	if len(states) == 0 {
		return
	}

	resolved := make([]resolvedOrder, 0, len(states))
	minInterval := s.interval
	haveInterval := false

	for _, st := range states {
		wallet, spec, err := s.resolveOwner(ctx, st)
		if err != nil {
			s.logger.Error("resolve owning wallet", "orderId", st.OrderID, "error", err)
			continue
		}
		if spec == nil {
			// Dereferenced order: no settings row owns it anymore.
			st.IsActive = false
			if err := s.store.GridStates().Save(ctx, st.WalletAddress, st.OrderID, st); err != nil {
				s.logger.Error("persist dereferenced order", "orderId", st.OrderID, "error", err)
			}
			continue
		}
		resolved = append(resolved, resolvedOrder{state: st, wallet: wallet, spec: spec})
		ri := spec.RefreshInterval()
		if ri > 0 && (!haveInterval || ri < minInterval) {
			minInterval = ri
			haveInterval = true
		}
	}

	if time.Since(s.lastGlobalRefresh) >= minInterval {
		s.refreshPrices(ctx, resolved)
		s.lastGlobalRefresh = time.Now()
	}

	var wg sync.WaitGroup
	for _, ro := range resolved {
		ro := ro
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			s.processOrder(ctx, ro)
		})
	}
	wg.Wait()
}

// refreshPrices groups the resolved orders by exchange (prices are
// exchange-global, not wallet-scoped — the wallet only matters for
// attributing which order needs which symbol) and refreshes each
// exchange's adapter in parallel.
func (s *Simple) refreshPrices(ctx context.Context, resolved []resolvedOrder) {
	bySymbol := make(map[domain.Exchange][]string)
	for _, ro := range resolved {
		bySymbol[ro.spec.Exchange] = append(bySymbol[ro.spec.Exchange], ro.spec.Symbol())
	}

	var wg sync.WaitGroup
	for ex, symbols := range bySymbol {
		adapter, ok := s.adapters[ex]
		if !ok {
			continue
		}
		ex, symbols, adapter := ex, symbols, adapter
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.feed.Refresh(ctx, adapter, symbols); err != nil {
				s.logger.Warn("price refresh failed", "exchange", ex, "error", err)
			}
		}()
	}
	wg.Wait()
}

// processOrder implements one order's per-tick decision step
// (spec.md §4.7), serialized per (wallet, orderId) via the keyed lock
// so overlapping pool workers never race the same Store rows.
func (s *Simple) processOrder(ctx context.Context, ro resolvedOrder) {
	key := ro.wallet + "/" + ro.state.OrderID
	if !s.lock.TryLock(key) {
		return
	}
	defer s.lock.Unlock(key)

	if time.Since(ro.state.LastUpdated) < ro.spec.RefreshInterval() {
		return
	}

	s.refreshBalance(ctx, ro.wallet, ro.spec.Exchange)

	price := s.feed.GetPrice(ro.spec.Symbol(), ro.wallet)
	if price.Equal(decimal.Zero) {
		return
	}

	if _, err := s.engine.ProcessPrice(ctx, ro.wallet, ro.state.OrderID, price, ro.spec); err != nil {
		s.logger.Error("process price", "wallet", ro.wallet, "orderId", ro.state.OrderID, "error", err)
	}
}

// refreshBalance is best-effort: on failure the wallet view keeps its
// last-known balances, per spec.md §4.7.
func (s *Simple) refreshBalance(ctx context.Context, wallet string, ex domain.Exchange) {
	adapter, ok := s.adapters[ex]
	if !ok {
		return
	}
	us, err := s.store.UserSettings().FindOne(ctx, wallet)
	if err != nil || us == nil {
		return
	}
	balances, err := adapter.FetchSpotAccount(ctx, wallet, us)
	if err != nil {
		s.logger.Warn("balance refresh failed", "wallet", wallet, "exchange", ex, "error", err)
		return
	}
	s.wallets.Sync(wallet, ex, balances)
}

// resolveOwner finds the wallet currently owning state.OrderID and its
// OrderSpec, returning a nil spec (not an error) if the order has been
// moved away or deleted from every settings row.
func (s *Simple) resolveOwner(ctx context.Context, st *domain.GridState) (string, *domain.OrderSpec, error) {
	owner, err := s.store.UserSettings().FindOwner(ctx, st.OrderID)
	if err != nil {
		return "", nil, err
	}
	if owner == "" {
		return "", nil, nil
	}
	us, err := s.store.UserSettings().FindOne(ctx, owner)
	if err != nil {
		return "", nil, err
	}
	if us == nil {
		return "", nil, nil
	}
	spec, ok := us.FindOrder(st.OrderID)
	if !ok {
		return "", nil, nil
	}
	return owner, spec, nil
}
