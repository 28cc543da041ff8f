package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Total number of orders placed through checkout",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_latency_seconds",
		Help:    "Latency of checkout transactions",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCanceledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_canceled_total",
		Help: "Total number of canceled orders",
	})

	OrderStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_status_transitions_total",
		Help: "Order status transitions by target status and trigger",
	}, []string{"to", "trigger"})

	StockReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_stock_reservations_failed_total",
		Help: "Total number of rejected stock reservations",
	}, []string{"reason"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_refunds_total",
		Help: "Refund workflow events by outcome",
	}, []string{"outcome"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_notifications_total",
		Help: "Notifications handed to the notifier by event type and result",
	}, []string{"event_type", "result"})

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
