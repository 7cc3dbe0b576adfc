package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProjectionMetrics contains Prometheus metrics for the projection engine.
type ProjectionMetrics struct {
	EventsProcessed  *prometheus.CounterVec
	ApplyDuration    *prometheus.HistogramVec
	RetryTotal       *prometheus.CounterVec
	BufferedEvents   prometheus.Gauge
	DeadLetterTotal  prometheus.Counter
	DeadLettersQueue prometheus.Gauge
}

// NewProjectionMetrics creates and registers projection metrics with the
// given registerer.
func NewProjectionMetrics(registerer prometheus.Registerer) *ProjectionMetrics {
	metrics := &ProjectionMetrics{
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_projection_events_processed_total",
				Help: "Total number of events handled by the projection engine",
			},
			[]string{"event_type", "status"}, // status: applied/buffered/dead_letter/failed
		),
		ApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orderflow_projection_apply_duration_seconds",
				Help:    "Time to apply one event across all projectors",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		RetryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderflow_projection_retry_total",
				Help: "Total number of transient retries during projection",
			},
			[]string{"event_type"},
		),
		BufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_projection_buffered_events",
			Help: "Number of out-of-order events currently buffered",
		}),
		DeadLetterTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_projection_dead_letter_total",
			Help: "Total number of events routed to the dead letter store",
		}),
		DeadLettersQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderflow_projection_dead_letters",
			Help: "Current number of dead letters awaiting repair",
		}),
	}

	registerer.MustRegister(
		metrics.EventsProcessed,
		metrics.ApplyDuration,
		metrics.RetryTotal,
		metrics.BufferedEvents,
		metrics.DeadLetterTotal,
		metrics.DeadLettersQueue,
	)

	return metrics
}
