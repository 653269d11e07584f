package phaseflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/notify"
)

// surveyRef addresses the drift baseline of a feature. Surveys live in
// the shared survey directory, one document per feature.
func surveyRef(feature string) artifact.Ref {
	return artifact.Ref{Kind: artifact.KindCodebaseSurvey, Name: feature}
}

// rebaseline surveys the project and makes the survey the feature's
// drift baseline. It runs on build, on re-plan and whenever a phase gate
// closes, so approved phase output never counts as drift.
func (e *Engine) rebaseline(ctx context.Context, feature string) (*drift.Survey, error) {
	_, span := e.tracer.Start(ctx, "engine.survey")
	defer span.End()

	s, err := e.surveyor.Survey()
	if err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}
	body, err := s.Encode()
	if err != nil {
		return nil, err
	}
	if _, err := e.artifacts.Put(surveyRef(feature), body, artifact.StatusActive); err != nil {
		return nil, err
	}
	return s, nil
}

// rebaselineOnClose is the gate close hook: the closed phase's output is
// part of the plan from now on.
func (e *Engine) rebaselineOnClose(feature string) gate.CloseHook {
	return func(ctx context.Context, g gate.PhaseGate) error {
		if _, err := e.rebaseline(ctx, feature); err != nil {
			return err
		}
		e.logger.Info("drift baseline refreshed", "feature", feature, "phase", g.Phase, "outcome", g.Outcome)
		return nil
	}
}

// baseline returns the feature's active survey, or nil before the first
// build.
func (e *Engine) baseline(feature string) (*drift.Survey, error) {
	a, err := e.artifacts.Active(surveyRef(feature))
	if errors.Is(err, artifact.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return drift.DecodeSurvey(a.Body)
}

// measure compares the baseline with a fresh survey and records the
// report. Without a baseline the report is empty and not recorded.
func (e *Engine) measure(feature string) (*drift.Report, error) {
	base, err := e.baseline(feature)
	if err != nil {
		return nil, err
	}
	if base == nil {
		return &drift.Report{Category: drift.CategoryNone}, nil
	}
	next, err := e.surveyor.Survey()
	if err != nil {
		return nil, fmt.Errorf("survey: %w", err)
	}
	r := e.compare.Compare(base, next)
	if err := e.record(feature, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (e *Engine) record(feature string, r *drift.Report) error {
	if _, err := e.state.SaveDriftReport(feature, r); err != nil {
		return err
	}
	e.metrics.RecordDriftScore(r.Score)
	if r.Score > 0 {
		e.logger.Info("drift measured", "feature", feature, "score", r.Score, "category", r.Category, "findings", len(r.Findings))
	}
	return nil
}

// Drift measures drift of the feature against its baseline.
func (e *Engine) Drift(ctx context.Context, feature string) (*drift.Report, error) {
	_, span := e.tracer.Start(ctx, "engine.drift")
	defer span.End()

	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	return e.measure(f.ID)
}

// Watch re-measures drift whenever manifests, top-level directories or
// HEAD change, calling fn with every non-zero report until ctx ends.
func (e *Engine) Watch(ctx context.Context, feature string, debounce time.Duration, fn func(*drift.Report)) error {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return err
	}
	base, err := e.baseline(f.ID)
	if err != nil {
		return err
	}
	if base == nil {
		return fmt.Errorf("%s has no drift baseline; build it first", f.ID)
	}

	w, err := drift.NewWatcher(e.surveyor, e.compare, base, debounce)
	if err != nil {
		return err
	}
	defer w.Stop()
	if err := w.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-w.Reports():
			if err := e.record(f.ID, r); err != nil {
				e.logger.Warn("failed to record drift report", "feature", f.ID, "error", err)
			}
			e.alert(ctx, f.ID, 0, r)
			fn(r)
		}
	}
}

// alert notifies about Alert and Critical reports.
func (e *Engine) alert(ctx context.Context, feature string, phase int, r *drift.Report) {
	var ev notify.Event
	switch r.Category {
	case drift.CategoryAlert:
		ev = notify.NewEvent(notify.EventDriftAlert, feature, notify.SeverityWarning, r.Summary())
	case drift.CategoryCritical:
		ev = notify.NewEvent(notify.EventDriftCritical, feature, notify.SeverityCritical, r.Summary())
	default:
		return
	}
	ev.Phase = phase
	if err := e.notifier.Notify(ctx, ev); err != nil {
		e.logger.Warn("notification failed", "type", ev.Type, "error", err)
	}
}

// driftGuard is consulted by the scheduler before each phase.
type driftGuard struct {
	engine  *Engine
	feature string
}

// Check implements scheduler.DriftGuard. Alerts are notified and the run
// continues; a critical report halts it. The scheduler notifies critical
// halts itself.
func (d *driftGuard) Check(ctx context.Context) error {
	r, err := d.engine.measure(d.feature)
	if err != nil {
		return err
	}
	if r.Category == drift.CategoryAlert {
		d.engine.alert(ctx, d.feature, 0, r)
	}
	return r.Halt()
}
