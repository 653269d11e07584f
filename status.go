package phaseflow

import (
	"errors"

	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/store"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// FeatureStatus is a snapshot of a feature's progress.
type FeatureStatus struct {
	Feature *artifact.Feature
	Graph   *taskgraph.Graph // nil until a task list is active
	Gates   map[int]*gate.PhaseGate
	LastRun *store.Run       // nil before the first run
	Drift   *drift.Report    // last recorded report, nil if none
}

// Gate returns the gate record of a phase, NotStarted when none exists.
func (s *FeatureStatus) Gate(phase int) *gate.PhaseGate {
	if g, ok := s.Gates[phase]; ok {
		return g
	}
	return &gate.PhaseGate{Phase: phase, State: gate.NotStarted}
}

// Features lists all features.
func (e *Engine) Features() ([]*artifact.Feature, error) {
	return e.artifacts.ListFeatures()
}

// Status reports a feature's graph, gates, last run and drift.
func (e *Engine) Status(feature string) (*FeatureStatus, error) {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	st := &FeatureStatus{Feature: f, Gates: make(map[int]*gate.PhaseGate)}

	e.mu.Lock()
	g, _, err := e.load(f.ID)
	e.mu.Unlock()
	switch {
	case err == nil:
		st.Graph = g
	case !errors.Is(err, artifact.ErrNotFound):
		return nil, err
	}

	gates, err := e.state.Gates(f.ID)
	if err != nil {
		return nil, err
	}
	for _, pg := range gates {
		st.Gates[pg.Phase] = pg
	}

	if st.LastRun, err = e.state.LastRun(f.ID); errors.Is(err, store.ErrNotFound) {
		st.LastRun, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if st.Drift, err = e.state.LatestDriftReport(f.ID); errors.Is(err, store.ErrNotFound) {
		st.Drift, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}
