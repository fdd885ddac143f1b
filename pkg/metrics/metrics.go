// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// PollCycles tracks poll cycles by type and outcome.
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_poll_cycles_total",
			Help: "Poll cycles by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// ReconcileDuration tracks how long each reconciliation command holds
	// the state.
	ReconcileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inbox_reconcile_duration_seconds",
			Help:    "Reconciliation command duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"command"},
	)

	// OptimisticMessages tracks optimistic send outcomes.
	OptimisticMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_optimistic_messages_total",
			Help: "Optimistic message transitions by outcome",
		},
		[]string{"outcome"},
	)

	// StaleResponses tracks poll responses discarded because the
	// selection changed before they were merged.
	StaleResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_stale_responses_total",
			Help: "Poll responses discarded by the stale-selection guard",
		},
		[]string{"type"},
	)

	// SnapshotRevision tracks the last published snapshot revision.
	SnapshotRevision = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_snapshot_revision",
			Help: "Revision of the last published inbox snapshot",
		},
	)

	// CacheReads tracks repaint-cache lookups.
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_cache_reads_total",
			Help: "Repaint cache reads by outcome",
		},
		[]string{"outcome"},
	)

	// CacheWrites tracks debounced cache flushes.
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_cache_writes_total",
			Help: "Repaint cache writes by outcome",
		},
		[]string{"outcome"},
	)

	// SSEConnectionsActive tracks active snapshot stream connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inbox_sse_connections_active",
			Help: "Number of active snapshot stream connections",
		},
	)

	// EventsPublished tracks engine events published to the broker.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbox_events_published_total",
			Help: "Engine events published by type and outcome",
		},
		[]string{"type", "outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active stream connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active stream connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
