// Package metrics holds the Prometheus collectors shared by the scheduler,
// the release gate and the drift detector.
//
// All metrics are prefixed with "phaseflow_":
//   - phaseflow_tasks_total{outcome} - tasks finished, by outcome
//   - phaseflow_task_duration_seconds{route} - provider invocation time
//   - phaseflow_tasks_running - tasks currently dispatched
//   - phaseflow_claim_conflicts_total - dispatches deferred by a claim overlap
//   - phaseflow_gate_transitions_total{to} - release gate transitions
//   - phaseflow_drift_score - score of the latest drift comparison
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TasksTotal      *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TasksRunning    prometheus.Gauge
	ClaimConflicts  prometheus.Counter
	GateTransitions *prometheus.CounterVec
	DriftScore      prometheus.Gauge
}

// Default returns the collectors registered with the global registry.
// Registration happens once per process.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers a fresh set of collectors with reg. Tests pass
// prometheus.NewRegistry() to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_tasks_total",
				Help: "Total number of tasks finished by the scheduler",
			},
			[]string{"outcome"}, // "done" or "failed"
		),
		TaskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaseflow_task_duration_seconds",
				Help:    "Duration of provider invocations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17m
			},
			[]string{"route"},
		),
		TasksRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "phaseflow_tasks_running",
				Help: "Number of tasks currently dispatched to providers",
			},
		),
		ClaimConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "phaseflow_claim_conflicts_total",
				Help: "Ready tasks left undispatched because a running task holds an overlapping claim",
			},
		),
		GateTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_gate_transitions_total",
				Help: "Release gate state transitions",
			},
			[]string{"to"},
		),
		DriftScore: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "phaseflow_drift_score",
				Help: "Score of the most recent drift comparison",
			},
		),
	}
}

// RecordTask records a finished task.
func (m *Metrics) RecordTask(outcome, route string, d time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(outcome).Inc()
	m.TaskDuration.WithLabelValues(route).Observe(d.Seconds())
}

// TaskStarted increments the running gauge.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.TasksRunning.Inc()
}

// TaskStopped decrements the running gauge.
func (m *Metrics) TaskStopped() {
	if m == nil {
		return
	}
	m.TasksRunning.Dec()
}

// RecordConflict records a dispatch deferred by a claim overlap.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.ClaimConflicts.Inc()
}

// RecordGateTransition records a release gate moving to state.
func (m *Metrics) RecordGateTransition(state string) {
	if m == nil {
		return
	}
	m.GateTransitions.WithLabelValues(state).Inc()
}

// RecordDriftScore sets the latest drift score.
func (m *Metrics) RecordDriftScore(score int) {
	if m == nil {
		return
	}
	m.DriftScore.Set(float64(score))
}
