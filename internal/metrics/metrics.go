package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_order_transitions_total",
			Help: "Order lifecycle transitions by event",
		},
		[]string{"event"}, // created, confirmed, cancelled, expired, completed, rejected
	)

	WithdrawalEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swap_withdrawal_events_total",
			Help: "Referral withdrawal requests by event",
		},
		[]string{"event"},
	)

	ReferralCredited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swap_referral_credits_total",
			Help: "Referral earnings recorded",
		},
	)

	PriceRefreshFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swap_price_refresh_failures_total",
			Help: "Failed price feed refreshes",
		},
	)

	NotificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swap_notification_failures_total",
			Help: "Notifications that could not be delivered or queued",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPResponseTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
