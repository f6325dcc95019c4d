package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of pending orders created at checkout",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders confirmed paid",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrdersRefundedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_refunded_total",
		Help: "Total number of refunded orders",
	})

	DiscountValidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_validations_total",
		Help: "Total number of discount code evaluations by verdict",
	}, []string{"verdict"})

	DiscountUsageConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discount_usage_consumed_total",
		Help: "Total number of discount usage increments on fulfilled payments",
	})

	InventoryCommitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_commits_total",
		Help: "Total number of successful inventory commits",
	})

	InventoryCommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_commit_failures_total",
		Help: "Total number of failed inventory commits",
	}, []string{"reason"})

	InventoryCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_commit_latency_seconds",
		Help:    "Latency of inventory commit operations",
		Buckets: prometheus.DefBuckets,
	})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of inbound provider webhooks by outcome",
	}, []string{"outcome"})

	WebhooksDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhooks_duplicate_total",
		Help: "Total number of webhook deliveries short-circuited by the idempotency ledger",
	})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook event processing",
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
