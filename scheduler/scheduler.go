package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/metrics"
	"github.com/randalmurphal/phaseflow/notify"
	"github.com/randalmurphal/phaseflow/provider"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/task"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

const instrumentationName = "github.com/randalmurphal/phaseflow/scheduler"

// DefaultConcurrency bounds simultaneous provider invocations when the
// config leaves it unset.
const DefaultConcurrency = 4

// Gate is the phase boundary hook. The release gate implements it.
type Gate interface {
	// BeginPhase prepares version control before the phase's first
	// dispatch. It is called again when a halted phase resumes.
	BeginPhase(ctx context.Context, p *taskgraph.Phase) error

	// TaskDone records a finished task, typically as a commit. An error
	// marks the task Failed.
	TaskDone(ctx context.Context, p *taskgraph.Phase, t *taskgraph.Task, out provider.Outcome) error

	// EndPhase releases a completed phase. proceed is false while the
	// phase awaits approval.
	EndPhase(ctx context.Context, p *taskgraph.Phase) (proceed bool, err error)
}

// DriftGuard is consulted before each phase starts. A *drift.CriticalHalt
// stops the run.
type DriftGuard interface {
	Check(ctx context.Context) error
}

// Recorder persists task status changes.
type Recorder interface {
	RecordTask(t *taskgraph.Task) error
}

// NotesSink collects retrospective notes reported by providers.
type NotesSink interface {
	BeginPhase(p *taskgraph.Phase) error
	AppendNotes(p *taskgraph.Phase, t *taskgraph.Task, notes retro.Fragment) error
}

// Config configures a Scheduler. Only Router is required.
type Config struct {
	Feature     string
	WorkDir     string
	Router      *provider.Router
	Concurrency int

	Gate     Gate
	Drift    DriftGuard
	Recorder Recorder
	Notes    NotesSink
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger

	// Enrich adds context (spec sections, technologies) to a descriptor
	// before dispatch.
	Enrich func(d *provider.Descriptor)
}

// RunState describes where a run stopped.
type RunState string

const (
	RunComplete         RunState = "complete"
	RunAwaitingApproval RunState = "awaiting_approval"
	RunHalted           RunState = "halted"
	RunDriftHalted      RunState = "drift_halted"
	RunCanceled         RunState = "canceled"
)

// Result summarizes a run.
type Result struct {
	State   RunState
	Phase   int      // phase the run stopped in, or the last phase
	Done    []string // tasks finished Done during this run
	Failed  []string // tasks finished Failed during this run
	Blocked []string // open tasks left behind in the stopped phase
	Drift   *drift.Report
}

// Scheduler dispatches the tasks of a graph phase by phase. A single
// coordinating goroutine owns all graph state; workers only invoke
// providers and report back over a channel.
type Scheduler struct {
	cfg      Config
	claims   *ClaimTable
	sem      *semaphore.Weighted
	tracer   trace.Tracer
	logger   *slog.Logger
	notifier notify.Notifier
}

// New creates a scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Router == nil {
		return nil, ErrNoRouter
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	s := &Scheduler{
		cfg:      cfg,
		claims:   NewClaimTable(),
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		tracer:   cfg.Tracer,
		logger:   cfg.Logger,
		notifier: notify.OrNop(cfg.Notifier),
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(instrumentationName)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Claims exposes the claim table.
func (s *Scheduler) Claims() *ClaimTable {
	return s.claims
}

// Run executes the graph from its current state. Phases whose mandatory
// tasks are all Done are handed to the gate again so a resumed run picks
// up where the previous one stopped; a Closed gate lets them pass at once.
//
// Cancelling ctx stops new dispatches. Tasks already running finish and
// are recorded before Run returns.
func (s *Scheduler) Run(ctx context.Context, g *taskgraph.Graph) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.run", trace.WithAttributes(
		attribute.String("feature", s.cfg.Feature),
		attribute.Int("phases", len(g.Phases)),
	))
	defer span.End()

	res := &Result{State: RunComplete}
	for _, p := range g.Phases {
		res.Phase = p.Index
		if len(p.Tasks) == 0 {
			continue
		}

		if hasOpenWork(p) {
			if err := ctx.Err(); err != nil {
				res.State = RunCanceled
				return res, err
			}
			if err := s.checkDrift(ctx, p, res); err != nil {
				span.SetStatus(codes.Error, err.Error())
				return res, err
			}
			if s.cfg.Gate != nil {
				if err := s.cfg.Gate.BeginPhase(ctx, p); err != nil {
					res.State = RunHalted
					span.RecordError(err)
					return res, err
				}
			}
			if s.cfg.Notes != nil {
				if err := s.cfg.Notes.BeginPhase(p); err != nil {
					s.logger.Warn("failed to start retrospective", "phase", p.Index, "error", err)
				}
			}

			failure := s.runPhase(ctx, g, p, res)
			if ctx.Err() != nil && !p.Complete() {
				res.State = RunCanceled
				res.Blocked = openTasks(p)
				return res, ctx.Err()
			}
			if !p.Complete() {
				return res, s.halt(ctx, p, res, failure)
			}
		} else if !p.Complete() {
			return res, s.halt(ctx, p, res, nil)
		}

		if s.cfg.Gate == nil {
			continue
		}
		proceed, err := s.cfg.Gate.EndPhase(ctx, p)
		if err != nil {
			res.State = RunHalted
			span.RecordError(err)
			return res, err
		}
		if !proceed {
			res.State = RunAwaitingApproval
			s.logger.Info("phase awaiting approval", "feature", s.cfg.Feature, "phase", p.Index)
			return res, nil
		}
	}

	s.notify(ctx, notify.EventRunCompleted, notify.SeverityInfo, 0, "",
		fmt.Sprintf("all %d phases complete", len(g.Phases)))
	return res, nil
}

func (s *Scheduler) checkDrift(ctx context.Context, p *taskgraph.Phase, res *Result) error {
	if s.cfg.Drift == nil {
		return nil
	}
	err := s.cfg.Drift.Check(ctx)
	if err == nil {
		return nil
	}
	var halt *drift.CriticalHalt
	if errors.As(err, &halt) {
		res.State = RunDriftHalted
		res.Drift = halt.Report
		s.logger.Warn("critical drift, halting before phase", "phase", p.Index, "score", halt.Report.Score)
		s.notify(ctx, notify.EventDriftCritical, notify.SeverityCritical, p.Index, "", err.Error())
		return err
	}
	res.State = RunHalted
	return fmt.Errorf("drift check before phase %d: %w", p.Index, err)
}

func (s *Scheduler) halt(ctx context.Context, p *taskgraph.Phase, res *Result, failure *TaskExecutionError) error {
	res.State = RunHalted
	res.Blocked = openTasks(p)

	var err error
	if failure != nil {
		err = failure
	} else {
		err = s.stalledError(p)
	}
	s.logger.Warn("phase halted", "phase", p.Index, "blocked", res.Blocked, "error", err)
	s.notify(ctx, notify.EventPhaseHalted, notify.SeverityError, p.Index, "", err.Error())
	return err
}

func (s *Scheduler) stalledError(p *taskgraph.Phase) error {
	for _, t := range p.Tasks {
		if t.Status == taskgraph.StatusFailed {
			return &TaskExecutionError{TaskID: t.ID, Phase: p.Index, Summary: "failed in an earlier run; reset it to retry"}
		}
	}
	return fmt.Errorf("%w: phase %d has open tasks %v that cannot become ready", ErrPhaseStalled, p.Index, openTasks(p))
}

type completion struct {
	task    *taskgraph.Task
	route   string
	outcome provider.Outcome
	err     error
	elapsed time.Duration
}

// runPhase is the coordinator loop for one phase. It returns the first
// task failure, if any.
func (s *Scheduler) runPhase(ctx context.Context, g *taskgraph.Graph, p *taskgraph.Phase, res *Result) *TaskExecutionError {
	ctx, span := s.tracer.Start(ctx, "scheduler.phase", trace.WithAttributes(
		attribute.Int("phase", p.Index),
		attribute.String("phase.name", p.Name),
	))
	defer span.End()

	s.logger.Info("starting phase", "feature", s.cfg.Feature, "phase", p.Index, "name", p.Name)

	results := make(chan completion)
	running := 0
	halted := false
	var first *TaskExecutionError

	for {
		if !halted && ctx.Err() == nil {
			s.promote(g, p)
			running += s.dispatch(ctx, p, results)
		}
		if running == 0 {
			break
		}

		c := <-results
		running--
		if failure := s.complete(ctx, p, c, res); failure != nil {
			if first == nil {
				first = failure
			}
			if !c.task.Parallel {
				halted = true
				s.logger.Warn("sequential task failed, no further dispatch in phase", "phase", p.Index, "task", c.task.ID)
			}
		}
	}

	if first != nil {
		span.SetStatus(codes.Error, first.Error())
	}
	return first
}

// promote moves Pending tasks whose dependencies are Done to Ready.
func (s *Scheduler) promote(g *taskgraph.Graph, p *taskgraph.Phase) {
	for _, t := range p.Tasks {
		if t.Status != taskgraph.StatusPending || !g.DepsDone(t) {
			continue
		}
		s.transition(t, taskgraph.StatusReady)
	}
}

// dispatch starts Ready tasks in document order until the concurrency
// bound is reached. Tasks whose claims overlap a running task stay Ready.
func (s *Scheduler) dispatch(ctx context.Context, p *taskgraph.Phase, results chan<- completion) int {
	started := 0
	for _, t := range p.Tasks {
		if t.Status != taskgraph.StatusReady {
			continue
		}
		holder, ok := s.claims.TryAcquire(t)
		if !ok {
			s.cfg.Metrics.RecordConflict()
			s.logger.Debug("claim conflict, deferring task", "task", t.ID, "held_by", holder)
			continue
		}
		if !s.sem.TryAcquire(1) {
			s.claims.Release(t.ID)
			break
		}

		d := s.describe(p, t)
		prov, route, routeErr := s.cfg.Router.Route(d)
		s.transition(t, taskgraph.StatusRunning)
		s.cfg.Metrics.TaskStarted()
		s.logger.Info("dispatching task", "task", t.ID, "route", route, "paths", t.Paths)

		go s.work(ctx, t, d, prov, route, routeErr, results)
		started++
	}
	return started
}

func (s *Scheduler) describe(p *taskgraph.Phase, t *taskgraph.Task) provider.Descriptor {
	d := provider.Descriptor{
		Feature:     s.cfg.Feature,
		TaskID:      t.ID,
		Phase:       p.Index,
		PhaseName:   p.Name,
		Description: t.Description,
		Paths:       append([]string(nil), t.Paths...),
		Story:       t.Story,
		Parallel:    t.Parallel,
		Kind:        task.Classify(p.Name, t.Description, t.Paths),
		WorkDir:     s.cfg.WorkDir,
	}
	if s.cfg.Enrich != nil {
		s.cfg.Enrich(&d)
	}
	return d
}

// work runs on its own goroutine. Provider calls are not cancelled with
// the run context; only new dispatches stop.
func (s *Scheduler) work(ctx context.Context, t *taskgraph.Task, d provider.Descriptor, prov provider.Provider, route string, routeErr error, results chan<- completion) {
	wctx, span := s.tracer.Start(context.WithoutCancel(ctx), "scheduler.task", trace.WithAttributes(
		attribute.String("task", d.TaskID),
		attribute.String("route", route),
		attribute.String("kind", string(d.Kind)),
	))
	defer span.End()

	c := completion{task: t, route: route}
	start := time.Now()
	if routeErr != nil {
		c.err = routeErr
	} else {
		c.outcome, c.err = prov.Invoke(wctx, d)
	}
	c.elapsed = time.Since(start)

	if c.err != nil {
		span.RecordError(c.err)
		span.SetStatus(codes.Error, c.err.Error())
	}
	results <- c
}

// complete records a finished task on the coordinator goroutine.
func (s *Scheduler) complete(ctx context.Context, p *taskgraph.Phase, c completion, res *Result) *TaskExecutionError {
	t := c.task
	s.claims.Release(t.ID)
	s.sem.Release(1)
	s.cfg.Metrics.TaskStopped()

	var failure *TaskExecutionError
	switch {
	case c.err != nil:
		failure = &TaskExecutionError{TaskID: t.ID, Phase: p.Index, Route: c.route, Err: c.err}
	case c.outcome.Status != provider.StatusDone:
		failure = &TaskExecutionError{TaskID: t.ID, Phase: p.Index, Route: c.route, Summary: c.outcome.Summary}
	case s.cfg.Gate != nil:
		if err := s.cfg.Gate.TaskDone(context.WithoutCancel(ctx), p, t, c.outcome); err != nil {
			failure = &TaskExecutionError{TaskID: t.ID, Phase: p.Index, Route: c.route, Err: err}
		}
	}

	if s.cfg.Notes != nil && !c.outcome.Notes.Empty() {
		if err := s.cfg.Notes.AppendNotes(p, t, c.outcome.Notes); err != nil {
			s.logger.Warn("failed to append retrospective notes", "task", t.ID, "error", err)
		}
	}

	if failure != nil {
		s.transition(t, taskgraph.StatusFailed)
		res.Failed = append(res.Failed, t.ID)
		s.cfg.Metrics.RecordTask("failed", c.route, c.elapsed)
		s.logger.Warn("task failed", "task", t.ID, "route", c.route, "error", failure)
		s.notify(ctx, notify.EventTaskFailed, notify.SeverityError, p.Index, t.ID, failure.Error())
		return failure
	}

	s.transition(t, taskgraph.StatusDone)
	res.Done = append(res.Done, t.ID)
	s.cfg.Metrics.RecordTask("done", c.route, c.elapsed)
	s.logger.Info("task done", "task", t.ID, "route", c.route, "elapsed", c.elapsed.Round(time.Millisecond))
	return nil
}

// transition applies a status change the scheduler has already validated
// and persists it.
func (s *Scheduler) transition(t *taskgraph.Task, to taskgraph.Status) {
	if err := taskgraph.Transition(t, to); err != nil {
		// The coordinator only requests legal steps.
		panic(err)
	}
	s.record(t)
}

func (s *Scheduler) record(t *taskgraph.Task) {
	if s.cfg.Recorder == nil {
		return
	}
	if err := s.cfg.Recorder.RecordTask(t); err != nil {
		s.logger.Warn("failed to record task status", "task", t.ID, "status", t.Status, "error", err)
	}
}

// Reset moves a Failed task back to Pending so the next run retries it.
func (s *Scheduler) Reset(g *taskgraph.Graph, taskID string) error {
	t, ok := g.Task(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if t.Status != taskgraph.StatusFailed {
		return fmt.Errorf("%w: task %s is %s, only failed tasks can be reset", taskgraph.ErrInvalidTransition, t.ID, t.Status)
	}
	if err := taskgraph.Transition(t, taskgraph.StatusPending); err != nil {
		return err
	}
	s.record(t)
	s.logger.Info("task reset", "task", t.ID)
	return nil
}

// Skip marks a Pending or Ready task Skipped with a reason.
func (s *Scheduler) Skip(g *taskgraph.Graph, taskID, reason string) error {
	t, ok := g.Task(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if err := taskgraph.Transition(t, taskgraph.StatusSkipped); err != nil {
		return err
	}
	t.SkipReason = reason
	s.record(t)
	s.logger.Info("task skipped", "task", t.ID, "reason", reason)
	return nil
}

func (s *Scheduler) notify(ctx context.Context, typ notify.EventType, severity string, phase int, taskID, msg string) {
	e := notify.NewEvent(typ, s.cfg.Feature, severity, msg)
	e.Phase = phase
	e.TaskID = taskID
	if err := s.notifier.Notify(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("notification failed", "type", typ, "error", err)
	}
}

// hasOpenWork reports whether the phase has Pending or Ready tasks.
func hasOpenWork(p *taskgraph.Phase) bool {
	for _, t := range p.Tasks {
		if t.Status == taskgraph.StatusPending || t.Status == taskgraph.StatusReady {
			return true
		}
	}
	return false
}

func openTasks(p *taskgraph.Phase) []string {
	var out []string
	for _, t := range p.Tasks {
		switch t.Status {
		case taskgraph.StatusPending, taskgraph.StatusReady:
			out = append(out, t.ID)
		}
	}
	return out
}
