// Package metrics provides Prometheus instrumentation for the generation router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts dispatched generation requests by provider and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generate_requests_total",
			Help: "Total generation requests by provider, mode and outcome.",
		},
		[]string{"provider", "mode", "outcome"}, // mode: "stream" or "buffered"
	)

	// DispatchRejections counts requests refused before any upstream call.
	DispatchRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generate_dispatch_rejections_total",
			Help: "Requests rejected before dispatch, by reason.",
		},
		[]string{"reason"}, // invalid_request, unauthorized, rate_limited, provider_unavailable, insufficient_credits
	)

	// UpstreamLatency tracks time to the terminal event in seconds.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Upstream call latency in seconds, until the last fragment for streams.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "mode"},
	)

	// FragmentsRelayed counts content events flushed to clients.
	FragmentsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_fragments_total",
			Help: "Content fragments flushed to clients.",
		},
		[]string{"provider"},
	)

	// ActiveStreams tracks the number of open client event streams.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_streams",
			Help: "Number of currently open client event streams.",
		},
	)

	// CreditsDebited counts credits taken by the ledger gate.
	CreditsDebited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_debited_total",
			Help: "Credits debited, split by anonymous demo and persisted ledgers.",
		},
		[]string{"ledger"},
	)

	// CircuitBreakerState tracks the current state of each provider breaker.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"provider"},
	)

	// BackgroundJobsDropped counts side-effect jobs dropped because the queue was full.
	BackgroundJobsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "background_jobs_dropped_total",
			Help: "Fire-and-forget jobs dropped on a full queue.",
		},
		[]string{"kind"},
	)
)
