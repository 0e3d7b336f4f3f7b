package gridengine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridbot/decimalmath"
	"gridbot/domain"
	apperrors "gridbot/pkg/errors"
)

// feeRate is the 0.1% taker fee used for the pre-trade expected-profit
// check (spec.md §4.6.5 step 7 / §4.6.7's mirror).
var feeRate = decimal.NewFromFloat(0.001)

// closeFeeRate is the rate actually charged against a closed position's
// buyValue+sellValue sum: `0.1% / 100`, i.e. 0.001% of the sum, not
// 0.1% (spec.md §4.6.6/§4.6.7 fee formulas; a known source quirk,
// specified as written).
var closeFeeRate = feeRate.Div(decimal.NewFromInt(100))

// minBuyTxValue is the Aster-spot exchange-enforced minimum order
// value in USDT, independent of any user-configured minimum.
var minBuyTxValue = decimal.NewFromInt(4)

// ExecuteBuy implements spec.md §4.6.5.
func (e *Engine) ExecuteBuy(ctx context.Context, wallet string, price decimal.Decimal, spec *domain.OrderSpec, state *domain.GridState) (*domain.GridState, error) {
	effPct := effectiveTrendPercent(state.CurrentFocusPrice, price, state.BuyTrendCounter, true, spec)
	txValue := calculateTransactionValue(price, state.BuyTrendCounter, true, &effPct, spec)

	if txValue.LessThan(minBuyTxValue) {
		e.emit(wallet, state.OrderID, "execute_buy", "skip", "below exchange minimum tx value")
		return state, nil
	}

	us, err := e.loadUserSettings(ctx, wallet)
	if err != nil {
		return state, err
	}

	quoteBalance := e.wallets.GetBalance(wallet, spec.Buy.Currency, spec.Exchange)
	if ok, reason := canExecuteBuy(quoteBalance, txValue, state, spec.Buy); !ok {
		e.emit(wallet, state.OrderID, "execute_buy", "skip", reason)
		return state, nil
	}

	amount := decimalmath.FloorTo(txValue.Div(price), domain.AmountScale)
	targetSellPrice := decimalmath.CeilTo(price.Mul(decimal.NewFromInt(1).Add(decimalmath.PercentOf(decimal.NewFromInt(1), spec.MinProfitPercent))), domain.PriceScale)

	expectedProfit := targetSellPrice.Sub(price).Mul(amount)
	if spec.Platform.CheckFeeProfit {
		if decimal.NewFromInt(2).Mul(feeRate).Mul(txValue).GreaterThanOrEqual(expectedProfit) {
			e.emit(wallet, state.OrderID, "execute_buy", "skip", "fee eats expected profit")
			return state, nil
		}
	}

	adapter, ok := e.adapters[spec.Exchange]
	if !ok {
		return state, &apperrors.ExchangeError{Exchange: string(spec.Exchange), Message: "no adapter configured"}
	}

	result, err := adapter.PlaceSpotBuy(ctx, wallet, us, spec.Symbol(), txValue, price)
	if err != nil {
		e.emit(wallet, state.OrderID, "execute_buy", "error", err.Error())
		return state, nil
	}

	now := time.Now()
	pos := &domain.Position{
		ID:              uuid.NewString(),
		WalletAddress:   wallet,
		OrderID:         state.OrderID,
		Type:            domain.PositionBuy,
		Status:          domain.StatusOpen,
		BuyPrice:        result.AvgPrice,
		Amount:          result.ExecutedQty,
		BuyValue:        result.AvgPrice.Mul(result.ExecutedQty),
		TrendAtBuy:      state.BuyTrendCounter,
		TargetSellPrice: targetSellPrice,
		CreatedAt:       now,
	}
	if err := e.store.Positions().Save(ctx, pos); err != nil {
		return state, &apperrors.StoreError{Op: "ExecuteBuy.SavePosition", Err: err}
	}

	next := *state
	next.OpenPositionIds = append(append([]string{}, state.OpenPositionIds...), pos.ID)
	maxTr := maxTrend(spec)
	clampedCounter := minInt(state.BuyTrendCounter+1, maxTr)
	nextTrend := clampedCounter
	if clampedCounter >= maxTr {
		nextTrend = 0
	}
	next.BuyTrendCounter = clampedCounter
	next.TotalBuyTransactions++
	next.TotalBoughtValue = next.TotalBoughtValue.Add(pos.BuyValue)
	next.CurrentFocusPrice = result.AvgPrice
	next.FocusLastUpdated = now
	next.NextBuyTarget = NextBuyTarget(result.AvgPrice, nextTrend, spec)
	next.LastUpdated = now

	if err := e.persistState(ctx, wallet, state.OrderID, &next); err != nil {
		return state, err
	}
	e.emit(wallet, state.OrderID, "execute_buy", "filled", pos.ID)
	return &next, nil
}

// ExecuteBuySell closes one OPEN BUY position (spec.md §4.6.6).
func (e *Engine) ExecuteBuySell(ctx context.Context, wallet string, price decimal.Decimal, spec *domain.OrderSpec, state *domain.GridState, pos *domain.Position) (*domain.GridState, error) {
	sellValue := pos.Amount.Mul(price)
	if sellValue.Sub(pos.BuyValue).IsNegative() {
		e.emit(wallet, state.OrderID, "execute_buy_sell", "skip", "would close at a loss")
		return state, nil
	}

	us, err := e.loadUserSettings(ctx, wallet)
	if err != nil {
		return state, err
	}
	adapter, ok := e.adapters[spec.Exchange]
	if !ok {
		return state, &apperrors.ExchangeError{Exchange: string(spec.Exchange), Message: "no adapter configured"}
	}

	result, err := adapter.PlaceSpotSell(ctx, wallet, us, spec.Symbol(), pos.Amount, price)
	if err != nil {
		e.emit(wallet, state.OrderID, "execute_buy_sell", "error", err.Error())
		return state, nil
	}

	executedSellValue := result.AvgPrice.Mul(result.ExecutedQty)
	grossProfit := executedSellValue.Sub(pos.BuyValue)
	fee := pos.BuyValue.Add(executedSellValue).Mul(closeFeeRate)
	netProfit := grossProfit.Sub(fee)

	now := time.Now()
	closed := *pos
	closed.SellPrice = result.AvgPrice
	closed.SellValue = executedSellValue
	closed.Profit = netProfit
	closed.Status = domain.StatusClosed
	closed.ClosedAt = &now
	if err := e.store.Positions().Save(ctx, &closed); err != nil {
		return state, &apperrors.StoreError{Op: "ExecuteBuySell.SavePosition", Err: err}
	}

	totalProfit, err := e.totalClosedProfit(ctx, wallet, state.OrderID)
	if err != nil {
		return state, err
	}

	next := *state
	next.OpenPositionIds = removeID(state.OpenPositionIds, pos.ID)
	nextTrend := maxInt(0, state.BuyTrendCounter-1)
	next.BuyTrendCounter = nextTrend
	next.TotalSellTransactions++
	next.TotalSoldValue = next.TotalSoldValue.Add(executedSellValue)
	next.TotalProfit = totalProfit
	next.CurrentFocusPrice = result.AvgPrice
	next.NextBuyTarget = NextBuyTarget(result.AvgPrice, nextTrend, spec)
	next.LastUpdated = now

	if err := e.persistState(ctx, wallet, state.OrderID, &next); err != nil {
		return state, err
	}
	e.emit(wallet, state.OrderID, "execute_buy_sell", "closed", pos.ID)
	return &next, nil
}

// ExecuteSellShort implements spec.md §4.6.7, symmetric to ExecuteBuy.
func (e *Engine) ExecuteSellShort(ctx context.Context, wallet string, price decimal.Decimal, spec *domain.OrderSpec, state *domain.GridState) (*domain.GridState, error) {
	effPct := effectiveTrendPercent(state.CurrentFocusPrice, price, state.SellTrendCounter, false, spec)
	txValue := calculateTransactionValue(price, state.SellTrendCounter, false, &effPct, spec)

	if txValue.LessThan(minBuyTxValue) {
		e.emit(wallet, state.OrderID, "execute_sell_short", "skip", "below exchange minimum tx value")
		return state, nil
	}

	us, err := e.loadUserSettings(ctx, wallet)
	if err != nil {
		return state, err
	}

	amount := decimalmath.FloorTo(txValue.Div(price), domain.AmountScale)
	baseBalance := e.wallets.GetBalance(wallet, spec.Sell.Currency, spec.Exchange)
	available := baseBalance.Sub(spec.Sell.WalletProtection)
	if available.LessThan(amount) {
		amount = available
	}
	if !amount.IsPositive() {
		e.emit(wallet, state.OrderID, "execute_sell_short", "skip", "no base balance available")
		return state, nil
	}
	txValue = amount.Mul(price)

	if ok, reason := canExecuteSellShort(baseBalance, txValue, state, spec.Sell); !ok {
		e.emit(wallet, state.OrderID, "execute_sell_short", "skip", reason)
		return state, nil
	}

	targetBuybackPrice := decimalmath.FloorTo(price.Mul(decimal.NewFromInt(1).Sub(decimalmath.PercentOf(decimal.NewFromInt(1), spec.MinProfitPercent))), domain.PriceScale)
	expectedProfit := price.Sub(targetBuybackPrice).Mul(amount)
	if spec.Platform.CheckFeeProfit {
		if decimal.NewFromInt(2).Mul(feeRate).Mul(txValue).GreaterThanOrEqual(expectedProfit) {
			e.emit(wallet, state.OrderID, "execute_sell_short", "skip", "fee eats expected profit")
			return state, nil
		}
	}

	adapter, ok := e.adapters[spec.Exchange]
	if !ok {
		return state, &apperrors.ExchangeError{Exchange: string(spec.Exchange), Message: "no adapter configured"}
	}

	result, err := adapter.PlaceSpotSell(ctx, wallet, us, spec.Symbol(), amount, price)
	if err != nil {
		e.emit(wallet, state.OrderID, "execute_sell_short", "error", err.Error())
		return state, nil
	}

	now := time.Now()
	pos := &domain.Position{
		ID:                 uuid.NewString(),
		WalletAddress:      wallet,
		OrderID:            state.OrderID,
		Type:               domain.PositionSell,
		Status:             domain.StatusOpen,
		SellPrice:          result.AvgPrice,
		Amount:             result.ExecutedQty,
		SellValue:          result.AvgPrice.Mul(result.ExecutedQty),
		TargetBuybackPrice: targetBuybackPrice,
		CreatedAt:          now,
	}
	if err := e.store.Positions().Save(ctx, pos); err != nil {
		return state, &apperrors.StoreError{Op: "ExecuteSellShort.SavePosition", Err: err}
	}

	next := *state
	next.OpenSellPositionIds = append(append([]string{}, state.OpenSellPositionIds...), pos.ID)
	maxTr := maxTrend(spec)
	clampedCounter := minInt(state.SellTrendCounter+1, maxTr)
	nextTrend := clampedCounter
	if clampedCounter >= maxTr {
		nextTrend = 0
	}
	next.SellTrendCounter = clampedCounter
	next.TotalSellTransactions++
	next.TotalSoldValue = next.TotalSoldValue.Add(pos.SellValue)
	next.CurrentFocusPrice = result.AvgPrice
	next.FocusLastUpdated = now
	next.NextSellTarget = NextSellTarget(result.AvgPrice, nextTrend, spec)
	next.LastUpdated = now

	if err := e.persistState(ctx, wallet, state.OrderID, &next); err != nil {
		return state, err
	}
	e.emit(wallet, state.OrderID, "execute_sell_short", "filled", pos.ID)
	return &next, nil
}

// ExecuteSellBuyback closes one OPEN SELL (short) position, the mirror
// of ExecuteBuySell (spec.md §4.6.7).
func (e *Engine) ExecuteSellBuyback(ctx context.Context, wallet string, price decimal.Decimal, spec *domain.OrderSpec, state *domain.GridState, pos *domain.Position) (*domain.GridState, error) {
	buybackValue := pos.Amount.Mul(price)
	if pos.SellValue.Sub(buybackValue).IsNegative() {
		e.emit(wallet, state.OrderID, "execute_sell_buyback", "skip", "would close at a loss")
		return state, nil
	}

	us, err := e.loadUserSettings(ctx, wallet)
	if err != nil {
		return state, err
	}
	adapter, ok := e.adapters[spec.Exchange]
	if !ok {
		return state, &apperrors.ExchangeError{Exchange: string(spec.Exchange), Message: "no adapter configured"}
	}

	result, err := adapter.PlaceSpotBuy(ctx, wallet, us, spec.Symbol(), buybackValue, price)
	if err != nil {
		e.emit(wallet, state.OrderID, "execute_sell_buyback", "error", err.Error())
		return state, nil
	}

	executedBuybackValue := result.AvgPrice.Mul(result.ExecutedQty)
	grossProfit := pos.SellValue.Sub(executedBuybackValue)
	fee := pos.SellValue.Add(executedBuybackValue).Mul(closeFeeRate)
	netProfit := grossProfit.Sub(fee)

	now := time.Now()
	closed := *pos
	closed.BuyPrice = result.AvgPrice
	closed.BuyValue = executedBuybackValue
	closed.Profit = netProfit
	closed.Status = domain.StatusClosed
	closed.ClosedAt = &now
	if err := e.store.Positions().Save(ctx, &closed); err != nil {
		return state, &apperrors.StoreError{Op: "ExecuteSellBuyback.SavePosition", Err: err}
	}

	totalProfit, err := e.totalClosedProfit(ctx, wallet, state.OrderID)
	if err != nil {
		return state, err
	}

	next := *state
	next.OpenSellPositionIds = removeID(state.OpenSellPositionIds, pos.ID)
	nextTrend := maxInt(0, state.SellTrendCounter-1)
	next.SellTrendCounter = nextTrend
	next.TotalBuyTransactions++
	next.TotalBoughtValue = next.TotalBoughtValue.Add(executedBuybackValue)
	next.TotalProfit = totalProfit
	next.CurrentFocusPrice = result.AvgPrice
	next.NextSellTarget = NextSellTarget(result.AvgPrice, nextTrend, spec)
	next.LastUpdated = now

	if err := e.persistState(ctx, wallet, state.OrderID, &next); err != nil {
		return state, err
	}
	e.emit(wallet, state.OrderID, "execute_sell_buyback", "closed", pos.ID)
	return &next, nil
}

// effectiveTrendPercent implements spec.md §4.6.5 step 1: the
// configured trend percent, bumped to match an actual price move that
// exceeds it, so sizing catches up after a sharp drop or spike.
func effectiveTrendPercent(focus, price decimal.Decimal, trend int, isBuy bool, spec *domain.OrderSpec) decimal.Decimal {
	configured := trendPercent(trend, isBuy, spec)
	if focus.IsZero() {
		return configured
	}

	var raw decimal.Decimal
	if isBuy {
		raw = focus.Sub(price).Div(focus).Mul(decimal.NewFromInt(100))
	} else {
		raw = price.Sub(focus).Div(focus).Mul(decimal.NewFromInt(100))
	}
	if raw.IsNegative() {
		raw = decimal.Zero
	}
	raw = decimalmath.FloorTo(raw, 1)

	return decimalmath.Max(configured, raw)
}

func removeID(ids []string, target string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
