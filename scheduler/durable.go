package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
	"gridbot/gridengine"
	"gridbot/pkg/logging"
	"gridbot/pricefeed"
	"gridbot/store"
	"gridbot/walletview"
)

// orderTick is the durable workflow input: everything ProcessOrder
// needs to make and persist one decision, captured by value so a
// resumed workflow replays against the same inputs it started with.
type orderTick struct {
	Wallet   string
	OrderID  string
	Exchange domain.Exchange
	Symbol   string
	Spec     *domain.OrderSpec
}

// workflows holds the dependencies DBOS replays ProcessOrder against.
// Kept separate from Durable itself so RegisterWorkflow can bind a
// plain method value before the dbos.DBOSContext exists.
type workflows struct {
	store    store.Store
	engine   *gridengine.Engine
	feed     *pricefeed.Feed
	wallets  *walletview.View
	adapters map[domain.Exchange]exchange.Adapter
}

// ProcessOrder is the durable workflow body: balance refresh and the
// engine's decide-place-persist step each run as their own DBOS step,
// so a crash between them resumes instead of re-running the side
// effect (spec.md §4.7, generalizing the teacher's
// internal/engine/durable/workflow.go split of CalculateActions /
// PlaceOrder / ApplyActionResults into separate RunAsStep calls).
func (w *workflows) ProcessOrder(ctx dbos.DBOSContext, input any) (any, error) {
	tick := input.(orderTick)

	_, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		adapter, ok := w.adapters[tick.Exchange]
		if !ok {
			return nil, nil
		}
		us, err := w.store.UserSettings().FindOne(stepCtx, tick.Wallet)
		if err != nil || us == nil {
			return nil, nil
		}
		balances, err := adapter.FetchSpotAccount(stepCtx, tick.Wallet, us)
		if err != nil {
			return nil, nil
		}
		w.wallets.Sync(tick.Wallet, tick.Exchange, balances)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	return ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		price := w.feed.GetPrice(tick.Symbol, tick.Wallet)
		if price.Equal(decimal.Zero) {
			return nil, nil
		}
		return w.engine.ProcessPrice(stepCtx, tick.Wallet, tick.OrderID, price, tick.Spec)
	})
}

// Durable is the DBOS-workflow-backed scheduler variant, selected by
// app.engine_type: dbos. It shares Simple's tick/throttle/price-
// refresh logic but dispatches each order's decision step through a
// durable workflow instead of an in-process worker-pool task.
type Durable struct {
	dbosCtx  dbos.DBOSContext
	workflow *workflows
	store    store.Store
	feed     *pricefeed.Feed
	adapters map[domain.Exchange]exchange.Adapter
	interval time.Duration
	logger   logging.ILogger

	lock KeyedLock

	tickMu            sync.Mutex
	lastGlobalRefresh time.Time
}

// NewDurable builds a Durable scheduler against an already-configured
// dbos.DBOSContext (construction and workflow registration happen at
// the composition root, same as the teacher's NewDBOSEngine/
// NewDBOSGridEngine constructors take a ready dbosCtx rather than
// building one themselves).
func NewDurable(dbosCtx dbos.DBOSContext, st store.Store, engine *gridengine.Engine, feed *pricefeed.Feed, wallets *walletview.View, adapters map[domain.Exchange]exchange.Adapter, interval time.Duration, logger logging.ILogger) *Durable {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Durable{
		dbosCtx: dbosCtx,
		workflow: &workflows{
			store: st, engine: engine, feed: feed, wallets: wallets, adapters: adapters,
		},
		store:    st,
		feed:     feed,
		adapters: adapters,
		interval: interval,
		logger:   logger.WithField("component", "scheduler_durable"),
	}
}

// Run implements bootstrap.Runner, launching the DBOS runtime and
// ticking until ctx is cancelled.
func (d *Durable) Run(ctx context.Context) error {
	if err := d.dbosCtx.Launch(); err != nil {
		return err
	}
	defer d.dbosCtx.Shutdown(30 * time.Second)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !d.tickMu.TryLock() {
				continue
			}
			d.runTick(ctx)
			d.tickMu.Unlock()
		}
	}
}

func (d *Durable) runTick(ctx context.Context) {
	states, err := d.store.GridStates().FindAllActive(ctx)
	if err != nil {
		d.logger.Error("load active grid states", "error", err)
		return
	}
	if len(states) == 0 {
		return
	}

	resolved := make([]resolvedOrder, 0, len(states))
	minInterval := d.interval
	haveInterval := false

	for _, st := range states {
		wallet, spec, err := d.resolveOwner(ctx, st)
		if err != nil {
			d.logger.Error("resolve owning wallet", "orderId", st.OrderID, "error", err)
			continue
		}
		if spec == nil {
			st.IsActive = false
			if err := d.store.GridStates().Save(ctx, st.WalletAddress, st.OrderID, st); err != nil {
				d.logger.Error("persist dereferenced order", "orderId", st.OrderID, "error", err)
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

	if time.Since(d.lastGlobalRefresh) >= minInterval {
		d.refreshPrices(ctx, resolved)
		d.lastGlobalRefresh = time.Now()
	}

	var wg sync.WaitGroup
	for _, ro := range resolved {
		ro := ro
		if time.Since(ro.state.LastUpdated) < ro.spec.RefreshInterval() {
			continue
		}
		key := ro.wallet + "/" + ro.state.OrderID
		if !d.lock.TryLock(key) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer d.lock.Unlock(key)
			d.dispatch(ctx, ro)
		}()
	}
	wg.Wait()
}

func (d *Durable) dispatch(ctx context.Context, ro resolvedOrder) {
	tick := orderTick{
		Wallet: ro.wallet, OrderID: ro.state.OrderID,
		Exchange: ro.spec.Exchange, Symbol: ro.spec.Symbol(), Spec: ro.spec,
	}
	handle, err := d.dbosCtx.RunWorkflow(d.dbosCtx, d.workflow.ProcessOrder, tick)
	if err != nil {
		d.logger.Error("start process-order workflow", "wallet", ro.wallet, "orderId", ro.state.OrderID, "error", err)
		return
	}
	if _, err := handle.GetResult(); err != nil {
		d.logger.Error("process-order workflow", "wallet", ro.wallet, "orderId", ro.state.OrderID, "error", err)
	}
}

func (d *Durable) refreshPrices(ctx context.Context, resolved []resolvedOrder) {
	bySymbol := make(map[domain.Exchange][]string)
	for _, ro := range resolved {
		bySymbol[ro.spec.Exchange] = append(bySymbol[ro.spec.Exchange], ro.spec.Symbol())
	}

	var wg sync.WaitGroup
	for ex, symbols := range bySymbol {
		adapter, ok := d.adapters[ex]
		if !ok {
			continue
		}
		ex, symbols, adapter := ex, symbols, adapter
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.feed.Refresh(ctx, adapter, symbols); err != nil {
				d.logger.Warn("price refresh failed", "exchange", ex, "error", err)
			}
		}()
	}
	wg.Wait()
}

func (d *Durable) resolveOwner(ctx context.Context, st *domain.GridState) (string, *domain.OrderSpec, error) {
	owner, err := d.store.UserSettings().FindOwner(ctx, st.OrderID)
	if err != nil {
		return "", nil, err
	}
	if owner == "" {
		return "", nil, nil
	}
	us, err := d.store.UserSettings().FindOne(ctx, owner)
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
