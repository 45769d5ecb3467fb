// Attune - Adaptive Personalization Engine for Mental Wellness Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/attune

// Package metrics provides Prometheus instrumentation for the personalization
// engine: interaction tracking throughput, adaptation latency, refresh
// scheduling activity, degradation fallbacks, and circuit breaker state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InteractionsTracked counts interactions recorded in the ledger by type.
	InteractionsTracked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attune_interactions_tracked_total",
			Help: "Total interactions recorded in the ledger",
		},
		[]string{"type"},
	)

	// PersistErrors counts fire-and-forget persistence failures.
	PersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attune_persist_errors_total",
			Help: "Total failed asynchronous ledger persistence writes",
		},
	)

	// AdaptDuration observes real-time adaptation latency.
	AdaptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attune_adapt_duration_seconds",
			Help:    "Duration of recommendation adaptation passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SafetyOverrides counts stress-override activations of the adapter.
	SafetyOverrides = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attune_safety_overrides_total",
			Help: "Total adaptations that entered the critical safety path",
		},
	)

	// RefreshPasses counts refresh passes by outcome.
	RefreshPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attune_refresh_passes_total",
			Help: "Total refresh passes by outcome (completed, skipped, discarded)",
		},
		[]string{"outcome"},
	)

	// RefreshInterval observes computed per-user refresh intervals.
	RefreshInterval = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attune_refresh_interval_seconds",
			Help:    "Computed adaptive refresh intervals",
			Buckets: []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	// ActiveSessions tracks the number of live per-user refresh sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attune_active_sessions",
			Help: "Number of active per-user refresh sessions",
		},
	)

	// Fallbacks counts degraded responses by entry point.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attune_fallbacks_total",
			Help: "Total degraded responses served instead of an error",
		},
		[]string{"operation"},
	)

	// InsightRequests counts AI insight generation attempts by result.
	InsightRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attune_insight_requests_total",
			Help: "Total AI insight generation attempts (ok, error, rejected)",
		},
		[]string{"result"},
	)

	// BreakerState reports the insight circuit breaker state (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attune_insight_breaker_state",
			Help: "AI insight circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// HTTPRequestDuration observes API endpoint latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attune_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// EventsPublished counts engine events published to the bus.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attune_events_published_total",
			Help: "Total engine events published",
		},
		[]string{"topic"},
	)
)

// ObserveAdapt records an adaptation duration.
func ObserveAdapt(start time.Time) {
	AdaptDuration.Observe(time.Since(start).Seconds())
}
