package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects pipeline counters. All methods tolerate a nil receiver so
// tests can run without a registry.
type Metrics struct {
	eventsProcessed prometheus.Counter
	eventsSkipped   prometheus.Counter
	stageSaves      *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	batches         prometheus.Counter
	batchDuration   prometheus.Histogram
}

// NewMetrics registers the pipeline metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowlens",
			Name:      "events_processed_total",
			Help:      "Events accepted by every stage of a chain.",
		}),
		eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowlens",
			Name:      "events_skipped_total",
			Help:      "Events dropped by a stage error.",
		}),
		stageSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlens",
			Name:      "stage_saves_total",
			Help:      "Successful stage flushes.",
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowlens",
			Name:      "stage_save_failures_total",
			Help:      "Failed stage flushes.",
		}, []string{"stage"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowlens",
			Name:      "batches_total",
			Help:      "Batches committed end to end.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowlens",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch including the save pass.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.eventsProcessed, m.eventsSkipped, m.stageSaves, m.stageFailures, m.batches, m.batchDuration)
	return m
}

func (m *Metrics) eventProcessed() {
	if m != nil {
		m.eventsProcessed.Inc()
	}
}

func (m *Metrics) eventSkipped() {
	if m != nil {
		m.eventsSkipped.Inc()
	}
}

func (m *Metrics) saved(stage string) {
	if m != nil {
		m.stageSaves.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) saveFailed(stage string) {
	if m != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

func (m *Metrics) batchDone(d time.Duration) {
	if m != nil {
		m.batches.Inc()
		m.batchDuration.Observe(d.Seconds())
	}
}
