package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total webhook events received, by type and outcome",
	}, []string{"type", "outcome"})

	WebhookSignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_signature_failures_total",
		Help: "Total webhook payloads rejected by signature verification",
	})

	WebhookProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook event reconciliation",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Total refund requests, by outcome",
	}, []string{"outcome"})

	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_total",
		Help: "Total payout attempts, by outcome",
	}, []string{"outcome"})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limited_requests_total",
		Help: "Total requests denied by the rate limiter",
	}, []string{"keyed_by"})

	ValidationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "request_validation_failures_total",
		Help: "Total requests rejected by the request validator",
	}, []string{"reason"})

	NotificationsQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_queued_total",
		Help: "Total notifications queued for delivery",
	})

	NotificationsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Total notifications delivered by the worker, by outcome",
	}, []string{"outcome"})

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
