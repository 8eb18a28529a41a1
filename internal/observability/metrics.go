package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MutationsTotal counts optimistic mutations by operation and outcome.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_mutations_total",
		Help: "Total optimistic mutations by operation and outcome",
	}, []string{"operation", "outcome"})

	// MutationsInFlight is the gauge of dispatched, unresolved mutations.
	MutationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedsync_mutations_in_flight",
		Help: "Number of dispatched mutations awaiting a response",
	})

	// EventsPublished counts event bus publishes by kind.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_events_published_total",
		Help: "Total event bus publishes by kind",
	}, []string{"kind"})

	// EventDeliveries counts handler invocations by kind.
	EventDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_event_deliveries_total",
		Help: "Total event deliveries to subscribers by kind",
	}, []string{"kind"})

	// APILatency records REST latency by method, route and status.
	APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedsync_api_latency_seconds",
		Help:    "REST backend latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// FetchesCancelled counts content fetches aborted by navigation or tab switch.
	FetchesCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_fetches_cancelled_total",
		Help: "Total content fetches cancelled before completion",
	}, []string{"view"})

	// SessionStoreErrors counts persisted key/value store failures.
	SessionStoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_session_store_errors_total",
		Help: "Total persisted key/value store errors by backend and operation",
	}, []string{"backend", "operation"})
)

// Outcome labels for MutationsTotal.
const (
	OutcomeApplied    = "applied"
	OutcomeReconciled = "reconciled"
	OutcomeRolledBack = "rolled_back"
	OutcomeDiscarded  = "discarded"
	OutcomeRejected   = "rejected"
)

// RecordMutation increments the mutation counter for op and outcome.
func RecordMutation(op, outcome string) {
	MutationsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveAPI records the latency of one backend call.
func ObserveAPI(method, route, status string, d time.Duration) {
	APILatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}
