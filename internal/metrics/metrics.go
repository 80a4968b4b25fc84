package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mediafinalizer"

// Metrics holds the collectors shared by the finalization pipeline.
type Metrics struct {
	ProbeAttempts *prometheus.CounterVec
	Dispatches    *prometheus.CounterVec
	Finalizations *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProbeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "object_probe_attempts_total",
			Help:      "Object existence probes by outcome.",
		}, []string{"outcome"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dispatches_total",
			Help:      "Queue dispatch attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		Finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Finalization calls by result kind.",
		}, []string{"result"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Latency of each finalization step.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"step"}),
	}

	if reg != nil {
		reg.MustRegister(m.ProbeAttempts, m.Dispatches, m.Finalizations, m.StepDuration)
	}
	return m
}

// nil-safe helpers so components can run without metrics in tests

func (m *Metrics) ProbeAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ProbeAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Dispatch(backend, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) Finalization(result string) {
	if m == nil {
		return
	}
	m.Finalizations.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStep(step string, started time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(time.Since(started).Seconds())
}
