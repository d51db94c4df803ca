package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoploss_decisions_total",
		Help: "Decisions emitted by the strategy",
	}, []string{"symbol", "kind", "reason"})

	Orders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoploss_orders_total",
		Help: "Order placement attempts by side and result",
	}, []string{"symbol", "side", "result"})

	Fills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoploss_fills_total",
		Help: "Executions of bot orders",
	}, []string{"symbol", "side"})

	CanTrade = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stoploss_can_trade",
		Help: "1 when the instrument accepts orders",
	}, []string{"symbol"})

	LastMidpoint = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stoploss_last_midpoint",
		Help: "Midpoint of the last evaluated candle",
	}, []string{"symbol"})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoploss_upstream_errors_total",
		Help: "Errors reported by the market data stream",
	}, []string{"symbol"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stoploss_reconnects_total",
		Help: "Stream reconnects",
	}, []string{"symbol"})
)

const (
	ResultPlaced  = "placed"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
