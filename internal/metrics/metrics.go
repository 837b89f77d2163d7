package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	EventsProcessed     prometheus.Counter
	EventsDiscarded     prometheus.Counter
	EventsDeferred      prometheus.Counter
	QueueItemsProcessed *prometheus.CounterVec
	QueueItemsFailed    *prometheus.CounterVec
	QueuePendingDepth   prometheus.Gauge
	QueueDeadDepth      prometheus.Gauge
	StatsReconciled     prometheus.Counter
	StatsDropped        prometheus.Counter
	RemoteWrites        *prometheus.CounterVec
	RemoteWriteSeconds  prometheus.Histogram
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_events_processed_total",
			Help: "Total number of activity events fetched, validated, and handled.",
		}),
		EventsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_events_discarded_total",
			Help: "Total number of events dropped by validation (never retried).",
		}),
		EventsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_events_deferred_total",
			Help: "Total number of events whose direct write failed and entered the retry queue.",
		}),

		QueueItemsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_processed_total",
			Help: "Total number of queue items delivered successfully.",
		}, []string{"kind"}),
		QueueItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_items_failed_total",
			Help: "Total number of failed queue item processing attempts.",
		}, []string{"kind"}),

		QueuePendingDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_pending_depth",
			Help: "Current number of items on the pending retry list.",
		}),
		QueueDeadDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_dead_letter_depth",
			Help: "Current number of items on the dead-letter list.",
		}),

		StatsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stats_reconciled_total",
			Help: "Total number of successful derived-stats reconciliation writes.",
		}),
		StatsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stats_dropped_total",
			Help: "Total number of stats snapshots dropped after exhausting reconcile attempts.",
		}),

		RemoteWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "remote_writes_total",
			Help: "Total number of remote store writes by collection and outcome.",
		}, []string{"collection", "outcome"}),
		RemoteWriteSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "remote_write_seconds",
			Help:    "Latency of remote store writes.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.EventsProcessed,
		m.EventsDiscarded,
		m.EventsDeferred,
		m.QueueItemsProcessed,
		m.QueueItemsFailed,
		m.QueuePendingDepth,
		m.QueueDeadDepth,
		m.StatsReconciled,
		m.StatsDropped,
		m.RemoteWrites,
		m.RemoteWriteSeconds,
	)

	return m
}

// DrainerHooks returns the metric callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the drainer stays
// metrics-agnostic.
func (m *Metrics) DrainerHooks() (
	onProcessed func(domain.Kind),
	onFailed func(domain.Kind),
	onDepths func(pending, deadLettered int),
) {
	onProcessed = func(k domain.Kind) {
		m.QueueItemsProcessed.WithLabelValues(string(k)).Inc()
	}
	onFailed = func(k domain.Kind) {
		m.QueueItemsFailed.WithLabelValues(string(k)).Inc()
	}
	onDepths = func(pending, dead int) {
		m.QueuePendingDepth.Set(float64(pending))
		m.QueueDeadDepth.Set(float64(dead))
	}
	return
}
