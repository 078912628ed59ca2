package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle skip reasons, used as the "reason" label on CyclesSkipped.
const (
	SkipReasonBalance    = "balance_guard"
	SkipReasonStartValue = "start_value_guard"
	SkipReasonMarketData = "market_data"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_cycles_total",
		Help: "Completed scheduler cycles",
	})

	CyclesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_cycles_skipped_total",
		Help: "Cycles that placed no orders, by reason",
	}, []string{"reason"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_orders_placed_total",
		Help: "Limit orders successfully placed, by side",
	}, []string{"side"})

	OrdersCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_orders_canceled_total",
		Help: "Orders confirmed canceled by the venue",
	})

	OrdersExecutedOnCancel = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_orders_executed_on_cancel_total",
		Help: "Cancellations that lost the race to a fill",
	})

	PlacementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_order_placement_failures_total",
		Help: "Limit order placements rejected or failed",
	})
)
