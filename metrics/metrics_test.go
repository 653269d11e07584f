package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordTask("done", "agent", 2*time.Second)
	m.RecordTask("done", "agent", time.Second)
	m.RecordTask("failed", "sql", time.Second)
	m.TaskStarted()
	m.TaskStarted()
	m.TaskStopped()
	m.RecordConflict()
	m.RecordGateTransition("closed")
	m.RecordDriftScore(8)

	if got := testutil.ToFloat64(m.TasksTotal.WithLabelValues("done")); got != 2 {
		t.Errorf("tasks done = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TasksRunning); got != 1 {
		t.Errorf("running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ClaimConflicts); got != 1 {
		t.Errorf("conflicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.GateTransitions.WithLabelValues("closed")); got != 1 {
		t.Errorf("gate closed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DriftScore); got != 8 {
		t.Errorf("drift score = %v, want 8", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordTask("done", "agent", time.Second)
	m.TaskStarted()
	m.TaskStopped()
	m.RecordConflict()
	m.RecordGateTransition("closed")
	m.RecordDriftScore(3)
}
