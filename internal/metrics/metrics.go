// Livefeed - Resilient Streaming Client and Adaptive Consumption Queue
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/livefeed

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Feed connection lifecycle (state, reconnects, received items)
// - Prefetch warming (warms, failures, releases)
// - Consumption queue (depth, cursor moves, viewed marks)
// - REST collaborator latency

var (
	// Feed Metrics
	FeedConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livefeed_connection_state",
			Help: "Current connection state per feed (0=disconnected, 1=connecting, 2=connected, 3=error, 4=failed)",
		},
		[]string{"feed"},
	)

	FeedReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_reconnects_total",
			Help: "Total number of reconnect attempts scheduled per feed",
		},
		[]string{"feed"},
	)

	FeedItemsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_items_received_total",
			Help: "Total number of pushed items received per feed",
		},
		[]string{"feed"},
	)

	FeedHeartbeatsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_heartbeats_received_total",
			Help: "Total number of heartbeats received per feed",
		},
		[]string{"feed"},
	)

	FeedPayloadsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_payloads_dropped_total",
			Help: "Total number of malformed push payloads dropped per feed",
		},
		[]string{"feed"},
	)

	// Prefetch Metrics
	PrefetchWarmsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_prefetch_warms_total",
			Help: "Total number of prefetch warms started",
		},
		[]string{"kind"}, // "image", "video"
	)

	PrefetchWarmFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_prefetch_warm_failures_total",
			Help: "Total number of prefetch warms that failed",
		},
		[]string{"kind"},
	)

	PrefetchReleasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livefeed_prefetch_releases_total",
			Help: "Total number of warmed resources released",
		},
	)

	PrefetchWarmedResources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livefeed_prefetch_warmed_resources",
			Help: "Current number of warmed resource handles",
		},
	)

	// Queue Metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livefeed_queue_depth",
			Help: "Current number of items in the consumption queue",
		},
	)

	QueueCursorMoves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_queue_cursor_moves_total",
			Help: "Total number of cursor movements",
		},
		[]string{"direction"}, // "next", "previous"
	)

	QueueItemsViewed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livefeed_queue_items_viewed_total",
			Help: "Total number of items marked viewed",
		},
	)

	// REST Collaborator Metrics
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livefeed_fetch_duration_seconds",
			Help:    "Duration of REST collaborator fetches in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"}, // "page", "item"
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livefeed_fetch_errors_total",
			Help: "Total number of REST collaborator fetch errors",
		},
		[]string{"operation"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "livefeed_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// ConnectionStateValue maps a feed state name to its gauge value.
// Kept here so the metric encoding lives beside the metric definition.
func ConnectionStateValue(state string) float64 {
	switch state {
	case "disconnected":
		return 0
	case "connecting":
		return 1
	case "connected":
		return 2
	case "error":
		return 3
	case "failed":
		return 4
	default:
		return 0
	}
}
