package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed at checkout",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_idempotent_replays_total",
		Help: "Total number of checkouts answered from an existing order",
	})

	CheckoutLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the stock validation and order persistence sequence",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	StockUnitsDecremented = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_units_decremented_total",
		Help: "Total product units removed from stock by checkouts",
	})

	OrderStatusUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_updates_total",
		Help: "Total number of order status updates",
	}, []string{"status"})

	ReturnRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "return_requests_total",
		Help: "Total number of return or exchange requests created",
	}, []string{"type"})

	StockMovementsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_movements_recorded_total",
		Help: "Total number of stock audit rows written by the worker",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
