package gridengine

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/domain"
	"gridbot/exchange"
	apperrors "gridbot/pkg/errors"
	"gridbot/pkg/logging"
	"gridbot/store"
	"gridbot/walletview"
)

// maxClosesPerStep caps how many positions a single long/short-close
// sweep may close in one decision step (spec.md §4.6 step 4).
const maxClosesPerStep = 10

// Engine is the grid bot's core decision logic: pure target/gate
// computation, with all I/O (Store reads/writes, PlaceOrder calls)
// confined to its Execute* methods and sweeps.
type Engine struct {
	store    store.Store
	adapters map[domain.Exchange]exchange.Adapter
	wallets  *walletview.View
	trace    *traceHub
	logger   logging.ILogger
}

// New builds a GridEngine against the given store, one adapter per
// exchange the wallet may trade on, and the shared wallet balance view.
func New(st store.Store, adapters map[domain.Exchange]exchange.Adapter, wallets *walletview.View, logger logging.ILogger) *Engine {
	return &Engine{
		store:    st,
		adapters: adapters,
		wallets:  wallets,
		trace:    newTraceHub(),
		logger:   logger.WithField("component", "gridengine"),
	}
}

// OnTrace registers a sink that receives every gate/execute decision
// this engine makes. Never required; purely observational.
func (e *Engine) OnTrace(sink TraceSink) {
	e.trace.subscribe(sink)
}

func (e *Engine) emit(wallet, orderID, step, outcome, detail string) {
	e.trace.emit(TraceRecord{
		Wallet: wallet, OrderID: orderID, Step: step, Outcome: outcome,
		Detail: detail, Timestamp: time.Now(),
	})
}

// CalculateNextBuyTarget exposes NextBuyTarget for preview callers.
func (e *Engine) CalculateNextBuyTarget(focus decimal.Decimal, trend int, spec *domain.OrderSpec) decimal.Decimal {
	return NextBuyTarget(focus, trend, spec)
}

// CalculateNextSellTarget exposes NextSellTarget for preview callers.
func (e *Engine) CalculateNextSellTarget(focus decimal.Decimal, trend int, spec *domain.OrderSpec) decimal.Decimal {
	return NextSellTarget(focus, trend, spec)
}

// InitializeGridState creates and persists the initial GridState for a
// newly-activated order (spec.md §4.6).
func (e *Engine) InitializeGridState(ctx context.Context, wallet string, spec *domain.OrderSpec) (*domain.GridState, error) {
	wallet = domain.NormalizeWallet(wallet)
	now := time.Now()

	state := &domain.GridState{
		WalletAddress:     wallet,
		OrderID:           spec.ID,
		CurrentFocusPrice: spec.FocusPrice,
		BuyTrendCounter:   0,
		SellTrendCounter:  0,
		NextBuyTarget:     NextBuyTarget(spec.FocusPrice, 0, spec),
		NextSellTarget:    NextSellTarget(spec.FocusPrice, 0, spec),
		IsActive:          spec.IsActive,
		FocusLastUpdated:  now,
		LastUpdated:       now,
	}

	if err := e.persistState(ctx, wallet, spec.ID, state); err != nil {
		return nil, err
	}
	return state, nil
}

// StartGrid flips isActive on and persists.
func (e *Engine) StartGrid(ctx context.Context, wallet, orderID string) error {
	return e.setActive(ctx, wallet, orderID, true)
}

// StopGrid flips isActive off and persists.
func (e *Engine) StopGrid(ctx context.Context, wallet, orderID string) error {
	return e.setActive(ctx, wallet, orderID, false)
}

func (e *Engine) setActive(ctx context.Context, wallet, orderID string, active bool) error {
	wallet = domain.NormalizeWallet(wallet)
	state, err := e.store.GridStates().FindByWalletAndOrderID(ctx, wallet, orderID)
	if err != nil {
		return &apperrors.StoreError{Op: "setActive.Find", Err: err}
	}
	if state == nil {
		return &apperrors.InvariantError{Invariant: "grid-state-exists", Detail: "no GridState for " + wallet + "/" + orderID}
	}
	state.IsActive = active
	return e.persistState(ctx, wallet, orderID, state)
}

// ProcessPrice performs one decision step, per spec.md §4.6's seven
// sub-steps. Idempotent-on-no-op; safe to call repeatedly.
func (e *Engine) ProcessPrice(ctx context.Context, wallet, orderID string, price decimal.Decimal, spec *domain.OrderSpec) (*domain.GridState, error) {
	wallet = domain.NormalizeWallet(wallet)

	state, err := e.store.GridStates().FindByWalletAndOrderID(ctx, wallet, orderID)
	if err != nil {
		return nil, &apperrors.StoreError{Op: "ProcessPrice.Find", Err: err}
	}
	if state == nil || !state.IsActive {
		return state, nil
	}

	state.LastKnownPrice = price
	state.LastPriceUpdate = time.Now()

	// Step 2: time-triggered focus reset.
	if spec.TimeToNewFocusSeconds > 0 && state.BuyTrendCounter == 0 && state.SellTrendCounter == 0 {
		interval := time.Duration(spec.TimeToNewFocusSeconds) * time.Second
		if time.Since(state.FocusLastUpdated) >= interval {
			state.CurrentFocusPrice = price
			state.NextBuyTarget = NextBuyTarget(price, 0, spec)
			state.NextSellTarget = NextSellTarget(price, 0, spec)
			state.FocusLastUpdated = time.Now()
			if err := e.persistState(ctx, wallet, orderID, state); err != nil {
				return state, err
			}
		}
	}

	// Step 3: BUY gate.
	if ok, reason := ShouldBuy(price, state, spec); ok {
		next, err := e.ExecuteBuy(ctx, wallet, price, spec, state)
		if err != nil {
			return state, err
		}
		return next, nil
	} else {
		e.emit(wallet, orderID, "buy_gate", "skip", reason)
	}

	// Step 4: long-close sweep.
	state, err = e.longCloseSweep(ctx, wallet, price, spec, state)
	if err != nil {
		return state, err
	}

	// Step 5: SELL-short gate.
	if ok, reason := ShouldSellShort(price, state, spec); ok {
		next, err := e.ExecuteSellShort(ctx, wallet, price, spec, state)
		if err != nil {
			return state, err
		}
		return next, nil
	} else {
		e.emit(wallet, orderID, "sell_short_gate", "skip", reason)
	}

	// Step 6: short-close sweep.
	state, err = e.shortCloseSweep(ctx, wallet, price, spec, state)
	if err != nil {
		return state, err
	}

	// Step 7: persist.
	if err := e.persistState(ctx, wallet, orderID, state); err != nil {
		return state, err
	}
	return state, nil
}

// longCloseSweep reconciles openPositionIds against OPEN BUY positions
// and closes any whose targetSellPrice the current price has reached,
// ascending by target, capped at maxClosesPerStep (spec.md §4.6 step 4).
func (e *Engine) longCloseSweep(ctx context.Context, wallet string, price decimal.Decimal, spec *domain.OrderSpec, state *domain.GridState) (*domain.GridState, error) {
	if longCloseThresholdBlocks(price, state, spec) {
		e.emit(wallet, state.OrderID, "long_close_sweep", "skip", "long close threshold")
		return state, nil
	}

	open, err := e.reconcileOpenPositions(ctx, wallet, state.OrderID, domain.PositionBuy, state)
	if err != nil {
		return state, err
	}
	sort.Slice(open, func(i, j int) bool { return open[i].TargetSellPrice.LessThan(open[j].TargetSellPrice) })

	closes := 0
	for _, pos := range open {
		if closes >= maxClosesPerStep {
			break
		}
		if price.LessThan(pos.TargetSellPrice) {
			break
		}
		next, err := e.ExecuteBuySell(ctx, wallet, price, spec, state, pos)
		if err != nil {
			return state, err
		}
		state = next
		closes++
	}
	return state, nil
}

// shortCloseSweep is the short-side mirror of longCloseSweep, gated
// additionally by the buyback swing gate referenced against
// currentFocusPrice (or the short's own entry price if focus is 0).
func (e *Engine) shortCloseSweep(ctx context.Context, wallet string, price decimal.Decimal, spec *domain.OrderSpec, state *domain.GridState) (*domain.GridState, error) {
	open, err := e.reconcileOpenPositions(ctx, wallet, state.OrderID, domain.PositionSell, state)
	if err != nil {
		return state, err
	}
	sort.Slice(open, func(i, j int) bool { return open[i].TargetBuybackPrice.LessThan(open[j].TargetBuybackPrice) })

	closes := 0
	for _, pos := range open {
		if closes >= maxClosesPerStep {
			break
		}
		if price.GreaterThan(pos.TargetBuybackPrice) {
			continue
		}

		focus := state.CurrentFocusPrice
		if focus.IsZero() {
			focus = pos.SellPrice
		}
		if !swingGatePasses(focus, price, spec.BuySwingPercent) {
			e.emit(wallet, state.OrderID, "short_close_sweep", "skip", "buyback swing gate")
			continue
		}

		next, err := e.ExecuteSellBuyback(ctx, wallet, price, spec, state, pos)
		if err != nil {
			return state, err
		}
		state = next
		closes++
	}
	return state, nil
}

// reconcileOpenPositions re-syncs state's cached open-id set for
// posType against the positions table before each sweep — the
// reconcile-before-decide step spec.md §3 (I1) requires, so a position
// saved without its id making it into a persisted GridState (a crash
// between the two writes) is recovered, and ids for positions that were
// closed out-of-band are scrubbed. Persists state when the rebuilt set
// disagrees with what was cached.
func (e *Engine) reconcileOpenPositions(ctx context.Context, wallet, orderID string, posType domain.PositionType, state *domain.GridState) ([]*domain.Position, error) {
	positions, err := e.store.Positions().FindByWalletAndOrderID(ctx, wallet, orderID, domain.StatusOpen)
	if err != nil {
		return nil, &apperrors.StoreError{Op: "reconcileOpenPositions", Err: err}
	}

	open := make([]*domain.Position, 0, len(positions))
	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		if p.Type == posType {
			open = append(open, p)
			ids = append(ids, p.ID)
		}
	}

	cached := &state.OpenPositionIds
	if posType == domain.PositionSell {
		cached = &state.OpenSellPositionIds
	}

	if !sameIDSet(*cached, ids) {
		*cached = ids
		if err := e.persistState(ctx, wallet, orderID, state); err != nil {
			return nil, err
		}
	}

	return open, nil
}

// sameIDSet reports whether a and b contain the same ids, ignoring order.
func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}

func (e *Engine) loadUserSettings(ctx context.Context, wallet string) (*domain.UserSettings, error) {
	us, err := e.store.UserSettings().FindOne(ctx, wallet)
	if err != nil {
		return nil, &apperrors.StoreError{Op: "loadUserSettings", Err: err}
	}
	return us, nil
}

func (e *Engine) totalClosedProfit(ctx context.Context, wallet, orderID string) (decimal.Decimal, error) {
	raw, err := e.store.Positions().GetTotalClosedProfit(ctx, wallet, orderID)
	if err != nil {
		return decimal.Zero, &apperrors.StoreError{Op: "totalClosedProfit", Err: err}
	}
	if raw == "" {
		return decimal.Zero, nil
	}
	val, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &apperrors.StoreError{Op: "totalClosedProfit.parse", Err: err}
	}
	return val, nil
}

func (e *Engine) persistState(ctx context.Context, wallet, orderID string, state *domain.GridState) error {
	state.LastUpdated = time.Now()
	if err := e.store.GridStates().Save(ctx, wallet, orderID, state); err != nil {
		return &apperrors.StoreError{Op: "persistState", Err: err}
	}
	return nil
}
