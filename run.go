package phaseflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/provider"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/scheduler"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// Run executes the feature's graph from its recorded state until it
// completes, halts, or a phase awaits approval. Each call is recorded as
// a run in the state store.
func (e *Engine) Run(ctx context.Context, feature string) (*scheduler.Result, error) {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return nil, err
	}
	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(attribute.String("feature", f.ID)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	g, _, err := e.load(f.ID)
	if err != nil {
		return nil, err
	}
	gm, err := e.newGate(f.ID)
	if err != nil {
		return nil, err
	}
	enrich, err := e.enricher(f.ID)
	if err != nil {
		return nil, err
	}

	run, err := e.state.BeginRun(f.ID)
	if err != nil {
		return nil, err
	}
	s, err := scheduler.New(scheduler.Config{
		Feature:     f.ID,
		WorkDir:     e.project.Root,
		Router:      e.router,
		Concurrency: e.project.Settings.Concurrency,
		Gate:        gm,
		Drift:       &driftGuard{engine: e, feature: f.ID},
		Recorder:    e.state.Recorder(f.ID, run.ID),
		Notes:       &notesSink{retro: e.retro, feature: f.ID},
		Notifier:    e.notifier,
		Metrics:     e.metrics,
		Tracer:      e.tracer,
		Logger:      e.logger,
		Enrich:      enrich,
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("run started", "feature", f.ID, "run", run.ID)
	res, runErr := s.Run(ctx, g)
	if err := e.state.FinishRun(run.ID, string(res.State), res.Phase); err != nil {
		e.logger.Warn("failed to record run result", "run", run.ID, "error", err)
	}
	e.logger.Info("run stopped",
		"feature", f.ID,
		"run", run.ID,
		"state", res.State,
		"phase", res.Phase,
		"done", len(res.Done),
		"failed", len(res.Failed))
	return res, runErr
}

// Approve releases a phase held at AwaitingApproval. It implements
// approval.Approver for the CLI, the webhook and the NATS listener.
// Approval does not resume the run.
func (e *Engine) Approve(ctx context.Context, ev approval.Event) error {
	f, err := e.artifacts.Feature(ev.Feature)
	if err != nil {
		return err
	}
	gm, err := e.newGate(f.ID)
	if err != nil {
		return err
	}
	return gm.Approve(ctx, ev)
}

// IssueToken signs an approval token for one phase of a feature.
func (e *Engine) IssueToken(feature string, phase int, approver string) (string, error) {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return "", err
	}
	return approval.Issue(e.TokenConfig(), f.ID, phase, approver)
}

// Reset moves a Failed task back to Pending so the next run retries it.
func (e *Engine) Reset(feature, taskID string) error {
	return e.operate(feature, func(s *scheduler.Scheduler, g *taskgraph.Graph) error {
		return s.Reset(g, taskID)
	})
}

// Skip marks a Pending or Ready task Skipped. The phase no longer waits
// for it.
func (e *Engine) Skip(feature, taskID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.New("skip needs a reason")
	}
	return e.operate(feature, func(s *scheduler.Scheduler, g *taskgraph.Graph) error {
		return s.Skip(g, taskID, reason)
	})
}

// operate applies an operator action through a scheduler that records to
// the state store.
func (e *Engine) operate(feature string, fn func(*scheduler.Scheduler, *taskgraph.Graph) error) error {
	f, err := e.artifacts.Feature(feature)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	g, _, err := e.load(f.ID)
	if err != nil {
		return err
	}
	s, err := scheduler.New(scheduler.Config{
		Feature:  f.ID,
		Router:   e.router,
		Recorder: e.state.Recorder(f.ID, ""),
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}
	return fn(s, g)
}

// enricher adds spec and plan sections, the surveyed technologies and the
// current content of claimed files to each task descriptor.
func (e *Engine) enricher(feature string) (func(*provider.Descriptor), error) {
	sections := make(map[string]string)
	for _, kind := range []artifact.Kind{artifact.KindSpecification, artifact.KindPlan} {
		a, err := e.artifacts.Active(artifact.Ref{Feature: feature, Kind: kind})
		if errors.Is(err, artifact.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, sec := range a.Sections() {
			if sec.Name == "" || strings.TrimSpace(sec.Body) == "" {
				continue
			}
			sections[fmt.Sprintf("%s: %s", kind, sec.Name)] = sec.Body
		}
	}

	var technologies []string
	base, err := e.baseline(feature)
	if err != nil {
		return nil, err
	}
	if base != nil {
		technologies = append(append(technologies, base.Languages...), base.Frameworks...)
	}

	return func(d *provider.Descriptor) {
		d.Technologies = technologies
		d.Context = make(map[string]string, len(sections)+1)
		for k, v := range sections {
			d.Context[k] = v
		}

		fc := e.project.NewFileContext()
		fc.AddClaims(d.Paths)
		if fc.FileCount() == 0 {
			return
		}
		text, err := fc.Build()
		if err != nil {
			e.logger.Warn("claimed files left out of task context", "task", d.TaskID, "error", err)
			return
		}
		d.Context["Current files"] = text
	}, nil
}

// notesSink files provider notes into the phase retrospective.
type notesSink struct {
	retro   *retro.Aggregator
	feature string
}

func (n *notesSink) BeginPhase(p *taskgraph.Phase) error {
	return n.retro.Begin(n.feature, p.Index, p.Name)
}

func (n *notesSink) AppendNotes(p *taskgraph.Phase, _ *taskgraph.Task, notes retro.Fragment) error {
	return n.retro.Append(n.feature, p.Index, p.Name, notes)
}
