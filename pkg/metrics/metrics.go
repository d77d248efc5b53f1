package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersSubmitted counts accepted submissions by side (buy/sell)
var OrdersSubmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "swapflow_orders_submitted_total",
		Help: "Total number of orders accepted for execution",
	},
	[]string{"side"},
)

// OrdersCompleted counts terminal outcomes by result (confirmed/failed)
var OrdersCompleted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "swapflow_orders_completed_total",
		Help: "Total number of orders reaching a terminal state",
	},
	[]string{"result"},
)

// OrderRetries counts pipeline re-runs triggered by the retry policy
var OrderRetries = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "swapflow_order_retries_total",
		Help: "Total number of pipeline retries",
	},
)

// OrdersInFlight tracks pipelines currently executing in the worker pool
var OrdersInFlight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "swapflow_orders_in_flight",
		Help: "Number of order pipelines currently executing",
	},
)

// OrderDuration records end-to-end pipeline latency including retries
var OrderDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "swapflow_order_duration_seconds",
		Help:    "End-to-end order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrdersCompleted, OrderRetries, OrdersInFlight, OrderDuration)
}
