package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names emitted by the grid engine and scheduler.
const (
	MetricOrdersActive        = "gridbot_orders_active"
	MetricPositionsOpenLong   = "gridbot_positions_open_long"
	MetricPositionsOpenShort  = "gridbot_positions_open_short"
	MetricBuysPlacedTotal     = "gridbot_buys_placed_total"
	MetricSellsPlacedTotal    = "gridbot_sells_placed_total"
	MetricShortsPlacedTotal   = "gridbot_shorts_placed_total"
	MetricBuybacksPlacedTotal = "gridbot_buybacks_placed_total"
	MetricRealizedProfit      = "gridbot_realized_profit_total"
	MetricDecisionLatency     = "gridbot_decision_latency_ms"
	MetricExchangeLatency     = "gridbot_exchange_latency_ms"
	MetricGatesDeniedTotal    = "gridbot_gates_denied_total"
)

// MetricsHolder holds initialized instruments plus the state backing
// the observable gauges (active orders, open positions per order).
type MetricsHolder struct {
	OrdersActive       metric.Int64ObservableGauge
	PositionsOpenLong  metric.Int64ObservableGauge
	PositionsOpenShort metric.Int64ObservableGauge
	BuysPlacedTotal    metric.Int64Counter
	SellsPlacedTotal   metric.Int64Counter
	ShortsPlacedTotal  metric.Int64Counter
	BuybacksTotal      metric.Int64Counter
	RealizedProfit     metric.Float64Counter
	DecisionLatency    metric.Float64Histogram
	ExchangeLatency    metric.Float64Histogram
	GatesDeniedTotal   metric.Int64Counter

	mu              sync.RWMutex
	activeOrdersMap map[string]int64
	openLongMap     map[string]int64
	openShortMap    map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			activeOrdersMap: make(map[string]int64),
			openLongMap:     make(map[string]int64),
			openShortMap:    make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics creates the instruments on the given meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.BuysPlacedTotal, err = meter.Int64Counter(MetricBuysPlacedTotal,
		metric.WithDescription("Total BUY orders placed")); err != nil {
		return err
	}
	if m.SellsPlacedTotal, err = meter.Int64Counter(MetricSellsPlacedTotal,
		metric.WithDescription("Total long-close SELL orders placed")); err != nil {
		return err
	}
	if m.ShortsPlacedTotal, err = meter.Int64Counter(MetricShortsPlacedTotal,
		metric.WithDescription("Total SELL-short orders placed")); err != nil {
		return err
	}
	if m.BuybacksTotal, err = meter.Int64Counter(MetricBuybacksPlacedTotal,
		metric.WithDescription("Total short buyback BUY orders placed")); err != nil {
		return err
	}
	if m.RealizedProfit, err = meter.Float64Counter(MetricRealizedProfit,
		metric.WithDescription("Cumulative realized profit across closed positions")); err != nil {
		return err
	}
	if m.GatesDeniedTotal, err = meter.Int64Counter(MetricGatesDeniedTotal,
		metric.WithDescription("Total gate denials (PolicyDenied) by gate name")); err != nil {
		return err
	}
	if m.DecisionLatency, err = meter.Float64Histogram(MetricDecisionLatency,
		metric.WithDescription("Time to run one ProcessPrice decision step"), metric.WithUnit("ms")); err != nil {
		return err
	}
	if m.ExchangeLatency, err = meter.Float64Histogram(MetricExchangeLatency,
		metric.WithDescription("Latency of exchange adapter HTTP calls"), metric.WithUnit("ms")); err != nil {
		return err
	}

	m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive,
		metric.WithDescription("Number of active grid orders"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for wallet, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("wallet", wallet)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionsOpenLong, err = meter.Int64ObservableGauge(MetricPositionsOpenLong,
		metric.WithDescription("Currently open long positions per order"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for orderID, val := range m.openLongMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("order_id", orderID)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.PositionsOpenShort, err = meter.Int64ObservableGauge(MetricPositionsOpenShort,
		metric.WithDescription("Currently open short positions per order"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for orderID, val := range m.openShortMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("order_id", orderID)))
			}
			return nil
		}))
	return err
}

// SetActiveOrders records the active-order count for a wallet.
func (m *MetricsHolder) SetActiveOrders(wallet string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[wallet] = count
}

// SetOpenLong records the open-long count for an order.
func (m *MetricsHolder) SetOpenLong(orderID string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLongMap[orderID] = count
}

// SetOpenShort records the open-short count for an order.
func (m *MetricsHolder) SetOpenShort(orderID string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openShortMap[orderID] = count
}
