package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders recorded in the ledger",
	})

	OrdersDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_duplicate_total",
		Help: "Total number of order requests answered from the payment-intent index",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	PaymentVerificationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_verification_fallbacks_total",
		Help: "Order creations that fell back to client-supplied payment data",
	})

	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of chat messages appended",
	}, []string{"sender"})

	RecoveryEmailsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_emails_total",
		Help: "Total number of abandoned-checkout recovery email attempts",
	}, []string{"result"})

	KeysDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keys_deleted_total",
		Help: "Total number of keys removed by bulk erasure routines",
	}, []string{"routine"})

	BulkDeleteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bulk_delete_duration_seconds",
		Help:    "Wall-clock duration of bulk erasure invocations",
		Buckets: prometheus.DefBuckets,
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
