// Package metrics exposes Prometheus instrumentation for the scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcome labels.
const (
	OutcomeAllSucceeded = "all_succeeded"
	OutcomePartial      = "partial_failure"
	OutcomeAllFailed    = "all_failed"
	OutcomeNotApproved  = "not_approved"
)

// Metrics holds the scheduler's Prometheus collectors.
type Metrics struct {
	publishAttempts *prometheus.CounterVec
	dispatches      *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	staleReleased   prometheus.Counter
}

// New creates the collectors and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts by result and error kind.",
		}, []string{"result", "error_kind"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "dispatches_total",
			Help:      "Schedule dispatches by aggregate outcome.",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		staleReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Name:      "stale_claims_released_total",
			Help:      "Dispatching entries reset to pending by recovery.",
		}),
	}

	reg.MustRegister(m.publishAttempts, m.dispatches, m.batchDuration, m.staleReleased)
	return m
}

// NewNop creates collectors bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObservePublish records one per-target publish attempt.
func (m *Metrics) ObservePublish(succeeded bool, errorKind string) {
	result := "success"
	if !succeeded {
		result = "failure"
	}
	m.publishAttempts.WithLabelValues(result, errorKind).Inc()
}

// ObserveDispatch records one schedule dispatch by aggregate outcome.
func (m *Metrics) ObserveDispatch(outcome string) {
	m.dispatches.WithLabelValues(outcome).Inc()
}

// ObserveBatch records the duration of one poll cycle.
func (m *Metrics) ObserveBatch(d time.Duration) {
	m.batchDuration.Observe(d.Seconds())
}

// ObserveStaleReleased records recovered stale claims.
func (m *Metrics) ObserveStaleReleased(count int64) {
	m.staleReleased.Add(float64(count))
}
