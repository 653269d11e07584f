package phaseflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/store"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// BuildResult describes a built or re-planned graph.
type BuildResult struct {
	Feature string
	Graph   *taskgraph.Graph
	Version int // task-list version the graph was built from

	// Set by Replan only.
	Summary *taskgraph.RebuildSummary
	Drift   *drift.Report
}

// CreateFeature allocates the next feature id for name.
func (e *Engine) CreateFeature(name string) (*artifact.Feature, error) {
	return e.artifacts.CreateFeature(name)
}

// PutArtifact stores body as the next version of a feature document.
// Activated versions supersede the previous active one.
func (e *Engine) PutArtifact(feature string, kind artifact.Kind, body []byte, activate bool) (*artifact.Artifact, error) {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	status := artifact.StatusDraft
	if activate {
		status = artifact.StatusActive
	}
	return e.artifacts.Put(artifact.Ref{Feature: f.ID, Kind: kind}, body, status)
}

// Build performs a full build from the active task list: statuses come
// from the list's checkboxes and replace any recorded progress. The
// current survey becomes the feature's drift baseline.
func (e *Engine) Build(ctx context.Context, feature string) (*BuildResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.build")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	a, err := e.artifacts.Active(artifact.Ref{Feature: f.ID, Kind: artifact.KindTaskList})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", f.ID, err)
	}
	g, err := parseGraph(a)
	if err != nil {
		return nil, err
	}

	if prev, err := e.state.TaskStates(f.ID); err == nil && len(prev) > 0 {
		e.logger.Warn("full build replaces recorded task progress", "feature", f.ID, "tasks", len(prev))
	}
	if err := e.recordAll(f.ID, g); err != nil {
		return nil, err
	}
	if _, err := e.rebaseline(ctx, f.ID); err != nil {
		return nil, err
	}

	counts := g.Counts()
	e.logger.Info("graph built",
		"feature", f.ID,
		"version", a.Version,
		"phases", len(g.Phases),
		"tasks", len(g.Tasks()),
		"done", counts[taskgraph.StatusDone])
	return &BuildResult{Feature: f.ID, Graph: g, Version: a.Version}, nil
}

// Replan merges the latest task-list version into the current graph.
// Done tasks are preserved; open tasks touching drifted paths are
// regenerated under new ids. With resurvey the drift report is computed
// now, otherwise the last recorded report is used. The merged graph is
// written as the new active task list and the current survey becomes the
// drift baseline, which lifts a critical drift halt.
//
// A feature that was never built gets a full build.
func (e *Engine) Replan(ctx context.Context, feature string, resurvey bool) (*BuildResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.replan")
	defer span.End()

	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	states, err := e.state.TaskStates(f.ID)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		e.logger.Info("no recorded progress, performing a full build", "feature", f.ID)
		return e.Build(ctx, f.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prev, _, err := e.load(f.ID)
	if err != nil {
		return nil, err
	}
	ref := artifact.Ref{Feature: f.ID, Kind: artifact.KindTaskList}
	latest, err := e.artifacts.Latest(ref)
	if err != nil {
		return nil, err
	}
	fresh, err := taskgraph.Parse(bytes.NewReader(latest.Body), latest.Path)
	if err != nil {
		return nil, err
	}

	var report *drift.Report
	if resurvey {
		if report, err = e.measure(f.ID); err != nil {
			return nil, err
		}
	} else {
		report, err = e.state.LatestDriftReport(f.ID)
		if errors.Is(err, store.ErrNotFound) {
			report, err = nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	g, summary, err := taskgraph.Rebuild(prev, fresh, report)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := taskgraph.Render(&buf, g); err != nil {
		return nil, err
	}
	a, err := e.artifacts.Put(ref, buf.Bytes(), artifact.StatusActive)
	if err != nil {
		return nil, err
	}
	if err := e.recordAll(f.ID, g); err != nil {
		return nil, err
	}
	if _, err := e.rebaseline(ctx, f.ID); err != nil {
		return nil, err
	}

	e.logger.Info("graph re-planned",
		"feature", f.ID,
		"version", a.Version,
		"preserved", len(summary.Preserved),
		"kept", len(summary.Kept),
		"regenerated", len(summary.Regenerated),
		"added", len(summary.Added),
		"skipped", len(summary.Skipped))
	return &BuildResult{Feature: f.ID, Graph: g, Version: a.Version, Summary: summary, Drift: report}, nil
}

// Graph returns the feature's graph with recorded task statuses applied.
func (e *Engine) Graph(feature string) (*taskgraph.Graph, error) {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	g, _, err := e.load(f.ID)
	return g, err
}

// load builds the graph from the active task list and overlays recorded
// statuses. Tasks interrupted while Running come back Failed.
func (e *Engine) load(feature string) (*taskgraph.Graph, []string, error) {
	a, err := e.artifacts.Active(artifact.Ref{Feature: feature, Kind: artifact.KindTaskList})
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", feature, err)
	}
	g, err := parseGraph(a)
	if err != nil {
		return nil, nil, err
	}
	states, err := e.state.TaskStates(feature)
	if err != nil {
		return nil, nil, err
	}
	interrupted := store.ApplyTaskStates(g, states)
	if len(interrupted) > 0 {
		rec := e.state.Recorder(feature, "")
		for _, id := range interrupted {
			t, _ := g.Task(id)
			if err := rec.RecordTask(t); err != nil {
				return nil, nil, err
			}
		}
		e.logger.Warn("tasks were interrupted and need a reset", "feature", feature, "tasks", interrupted)
	}
	return g, interrupted, nil
}

func parseGraph(a *artifact.Artifact) (*taskgraph.Graph, error) {
	list, err := taskgraph.Parse(bytes.NewReader(a.Body), a.Path)
	if err != nil {
		return nil, err
	}
	return taskgraph.Build(list)
}

func (e *Engine) recordAll(feature string, g *taskgraph.Graph) error {
	rec := e.state.Recorder(feature, "")
	for _, t := range g.Tasks() {
		if err := rec.RecordTask(t); err != nil {
			return err
		}
	}
	return nil
}
