package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/metrics"
	"github.com/randalmurphal/phaseflow/notify"
	"github.com/randalmurphal/phaseflow/pr"
	"github.com/randalmurphal/phaseflow/provider"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// DefaultPollInterval paces CI status polling.
const DefaultPollInterval = 30 * time.Second

// VCS is the version control surface the gate drives. *git.Context
// implements it.
type VCS interface {
	CurrentBranch() (string, error)
	IsClean() (bool, error)
	Checkout(ref string) error
	Sync() error
	CheckoutNew(name string) error
	ChangedFiles() ([]string, error)
	CommitPaths(message string, paths ...string) (*git.CommitResult, error)
	PushCurrent() (*git.PushResult, error)
	Trunk() string
	Exec(name string, args ...string) (string, error)
}

var _ VCS = (*git.Context)(nil)

// Promoter copies a closed phase's universal retrospective items into
// project memory. *retro.Aggregator implements it.
type Promoter interface {
	Promote(feature string, index int, name string) ([]retro.Item, error)
}

// CloseHook runs after a phase reaches Closed. Errors are logged and do
// not reopen the phase.
type CloseHook func(ctx context.Context, g PhaseGate) error

// Config configures a Manager. Feature and VCS are required.
type Config struct {
	Feature string
	VCS     VCS
	Review  pr.Provider // nil skips the review request and CI wait
	Store   Store       // default: in-memory

	Branches   *git.BranchNamer
	PreCommit  []Check
	PrePush    []Check
	Summarizer Summarizer
	Promoter   Promoter
	OnClose    CloseHook

	Notifier     notify.Notifier
	Metrics      *metrics.Metrics
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Manager runs the release gate of each phase of one feature. It
// implements the scheduler's phase hook.
type Manager struct {
	cfg      Config
	mu       sync.Mutex
	limiter  *rate.Limiter
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a gate manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Feature == "" {
		return nil, errors.New("gate: feature is required")
	}
	if cfg.VCS == nil {
		return nil, errors.New("gate: VCS is required")
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Branches == nil {
		cfg.Branches = git.DefaultBranchNamer()
	}
	if cfg.Summarizer == nil {
		cfg.Summarizer = NewPromptSummarizer(nil)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.PollInterval), 1),
		notifier: notify.OrNop(cfg.Notifier),
		logger:   logger.With("feature", cfg.Feature),
		now:      time.Now,
	}, nil
}

// State returns the gate record of a phase. Phases without a record are
// NotStarted.
func (m *Manager) State(phase int) (*PhaseGate, error) {
	g, err := m.cfg.Store.LoadGate(m.cfg.Feature, phase)
	if err != nil {
		return nil, fmt.Errorf("load gate: %w", err)
	}
	if g == nil {
		g = &PhaseGate{Phase: phase, State: NotStarted}
	}
	return g, nil
}

func (m *Manager) load(p *taskgraph.Phase) (*PhaseGate, error) {
	g, err := m.State(p.Index)
	if err != nil {
		return nil, err
	}
	if g.Name == "" {
		g.Name = p.Name
	}
	return g, nil
}

func (m *Manager) move(g *PhaseGate, to State) error {
	if !CanTransition(g.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.State, to)
	}
	from := g.State
	g.State = to
	g.UpdatedAt = m.now().UTC()
	if err := m.cfg.Store.SaveGate(m.cfg.Feature, g); err != nil {
		return fmt.Errorf("save gate: %w", err)
	}
	m.cfg.Metrics.RecordGateTransition(string(to))
	m.logger.Info("gate transition", "phase", g.Phase, "from", from, "to", to)
	return nil
}

// rollback moves to a stable state after a failed operation and returns
// the GateError describing it.
func (m *Manager) rollback(g *PhaseGate, op string, to State, cause error) error {
	from := g.State
	if err := m.move(g, to); err != nil {
		m.logger.Warn("gate rollback failed", "phase", g.Phase, "error", err)
		to = g.State
	}
	return &GateError{Phase: g.Phase, Op: op, From: from, State: to, Err: cause}
}

// BeginPhase verifies a clean tree on trunk, pulls the latest trunk and
// checks out the phase branch. A phase already in progress only returns
// to its branch.
func (m *Manager) BeginPhase(ctx context.Context, p *taskgraph.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.load(p)
	if err != nil {
		return err
	}

	switch g.State {
	case InProgress:
		return m.checkoutBranch(g)
	case Pushing, AwaitingReview, AwaitingCI:
		// A task was reset after release started; go back to work.
		if err := m.move(g, InProgress); err != nil {
			return err
		}
		return m.checkoutBranch(g)
	case AwaitingApproval, Closed:
		return &GateError{Phase: g.Phase, Op: "begin", From: g.State, State: g.State, Err: ErrPhaseReleased}
	case Syncing:
		if err := m.move(g, NotStarted); err != nil {
			return err
		}
	}

	vcs := m.cfg.VCS
	clean, err := vcs.IsClean()
	if err != nil {
		return &GateError{Phase: g.Phase, Op: "verify", From: NotStarted, State: NotStarted, Err: err}
	}
	if !clean {
		return &GateError{Phase: g.Phase, Op: "verify", From: NotStarted, State: NotStarted, Err: git.ErrGitDirty}
	}
	branch, err := vcs.CurrentBranch()
	if err != nil {
		return &GateError{Phase: g.Phase, Op: "verify", From: NotStarted, State: NotStarted, Err: err}
	}
	if branch != vcs.Trunk() {
		// Leaving an earlier phase branch of this feature is fine on a
		// clean tree; anything else is the operator's work.
		if !strings.HasPrefix(branch, m.cfg.Branches.ForFeature(m.cfg.Feature)+"/") {
			return &GateError{Phase: g.Phase, Op: "verify", From: NotStarted, State: NotStarted,
				Err: fmt.Errorf("%w: on %s, want %s", git.ErrNotOnTrunk, branch, vcs.Trunk())}
		}
		if err := vcs.Checkout(vcs.Trunk()); err != nil {
			return &GateError{Phase: g.Phase, Op: "checkout", From: NotStarted, State: NotStarted, Err: err}
		}
	}

	if err := m.move(g, Syncing); err != nil {
		return err
	}
	if err := vcs.Sync(); err != nil {
		return m.rollback(g, "sync", NotStarted, err)
	}
	g.Branch = m.cfg.Branches.ForPhase(m.cfg.Feature, p.Index, p.Name)
	if err := vcs.CheckoutNew(g.Branch); err != nil {
		return m.rollback(g, "branch", NotStarted, err)
	}
	return m.move(g, InProgress)
}

func (m *Manager) checkoutBranch(g *PhaseGate) error {
	if g.Branch == "" {
		return nil
	}
	current, err := m.cfg.VCS.CurrentBranch()
	if err == nil && current == g.Branch {
		return nil
	}
	if err := m.cfg.VCS.CheckoutNew(g.Branch); err != nil {
		return &GateError{Phase: g.Phase, Op: "checkout", From: g.State, State: g.State, Err: err}
	}
	return nil
}

// TaskDone commits a finished task's files after the pre-commit checks
// pass. A failed check leaves the gate InProgress and fails the task.
func (m *Manager) TaskDone(ctx context.Context, p *taskgraph.Phase, t *taskgraph.Task, out provider.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.load(p)
	if err != nil {
		return err
	}
	if g.State != InProgress {
		return fmt.Errorf("%w: phase %d is %s", ErrNotInProgress, p.Index, g.State)
	}

	paths, err := m.stagePaths(t, out)
	if err != nil {
		return &GateError{Phase: g.Phase, Op: "status", From: InProgress, State: InProgress, Err: err}
	}
	if len(paths) == 0 {
		m.logger.Info("task left nothing to commit", "phase", p.Index, "task", t.ID)
		return nil
	}

	if err := runChecks(ctx, m.cfg.PreCommit, m.cfg.VCS, paths); err != nil {
		m.logger.Warn("pre-commit check failed", "phase", p.Index, "task", t.ID, "error", err)
		return err
	}

	msg := git.NewCommitMessage(git.TypeForPaths(paths), subject(t.Description)).
		WithScope(strings.ToLower(t.Story)).
		ForTask(m.cfg.Feature, p.Index, t.ID)
	res, err := m.cfg.VCS.CommitPaths(msg.String(), paths...)
	if errors.Is(err, git.ErrNothingToCommit) {
		return nil
	}
	if err != nil {
		return &GateError{Phase: g.Phase, Op: "commit", From: InProgress, State: InProgress, Err: err}
	}

	g.Commits = append(g.Commits, res.SHA)
	g.UpdatedAt = m.now().UTC()
	if err := m.cfg.Store.SaveGate(m.cfg.Feature, g); err != nil {
		return fmt.Errorf("save gate: %w", err)
	}
	m.logger.Info("committed task", "phase", p.Index, "task", t.ID, "sha", res.SHA, "files", len(paths))
	return nil
}

// stagePaths selects the uncommitted files that belong to the task:
// reported changes plus anything under its claims.
func (m *Manager) stagePaths(t *taskgraph.Task, out provider.Outcome) ([]string, error) {
	changed, err := m.cfg.VCS.ChangedFiles()
	if err != nil {
		return nil, err
	}
	owned := append(out.ChangedPaths(), t.Paths...)

	var paths []string
	for _, c := range changed {
		for _, o := range owned {
			o = strings.TrimSuffix(o, "/")
			if c == o || strings.HasPrefix(c, o+"/") {
				paths = append(paths, c)
				break
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func subject(desc string) string {
	desc = strings.TrimSpace(strings.SplitN(desc, "\n", 2)[0])
	if len(desc) > 72 {
		desc = strings.TrimSpace(desc[:69]) + "..."
	}
	if desc == "" {
		desc = "complete task"
	}
	return desc
}

// EndPhase releases a finished phase: pre-push checks, push, review
// request, CI wait. It returns proceed=true only once the phase is
// Closed. Reaching AwaitingApproval emits the ready-for-review signal
// once and returns proceed=false.
func (m *Manager) EndPhase(ctx context.Context, p *taskgraph.Phase) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.load(p)
	if err != nil {
		return false, err
	}

	for {
		switch g.State {
		case Closed:
			return true, nil

		case NotStarted:
			// Every task was already Done or Skipped before the gate saw
			// the phase.
			m.logger.Warn("phase closing with no work under the gate", "phase", g.Phase)
			if err := m.close(ctx, g, OutcomeNoWork, notify.SeverityWarning,
				fmt.Sprintf("phase %d (%s) closed with no commits: no task ran under the gate", g.Phase, g.Name)); err != nil {
				return false, err
			}

		case Syncing:
			if err := m.move(g, NotStarted); err != nil {
				return false, err
			}

		case InProgress:
			if len(g.Commits) == 0 {
				// Nothing to push or review; an operator still has to
				// accept the empty phase.
				m.logger.Warn("phase has no commits, holding for approval", "phase", g.Phase)
				g.Empty = true
				if err := m.move(g, AwaitingApproval); err != nil {
					return false, err
				}
				continue
			}
			if err := m.checkoutBranch(g); err != nil {
				return false, err
			}
			if err := runChecks(ctx, m.cfg.PrePush, m.cfg.VCS, nil); err != nil {
				m.logger.Warn("pre-push check failed", "phase", g.Phase, "error", err)
				return false, err
			}
			if err := m.move(g, Pushing); err != nil {
				return false, err
			}

		case Pushing:
			if _, err := m.cfg.VCS.PushCurrent(); err != nil {
				return false, m.rollback(g, "push", InProgress, err)
			}
			if err := m.move(g, AwaitingReview); err != nil {
				return false, err
			}

		case AwaitingReview:
			if m.cfg.Review != nil {
				summary, err := m.cfg.Summarizer.Summarize(m.cfg.Feature, p)
				if err != nil {
					return false, m.rollback(g, "review", InProgress, fmt.Errorf("summarize: %w", err))
				}
				id, err := m.cfg.Review.CreateOrUpdate(ctx, g.Branch, summary)
				if err != nil {
					return false, m.rollback(g, "review", InProgress, err)
				}
				g.ReviewID = id
			}
			if err := m.move(g, AwaitingCI); err != nil {
				return false, err
			}

		case AwaitingCI:
			status, err := m.pollCI(ctx, g)
			if err != nil {
				if errors.Is(err, errPollStopped) || ctx.Err() != nil {
					// Polling resumes on the next run.
					return false, err
				}
				return false, m.rollback(g, "ci", InProgress, err)
			}
			if status == pr.StatusFailed {
				m.notify(ctx, notify.EventPhaseHalted, notify.SeverityError, g.Phase,
					fmt.Sprintf("CI failed for phase %d review #%d", g.Phase, g.ReviewID))
				return false, m.rollback(g, "ci", InProgress, ErrCIFailed)
			}
			if err := m.move(g, AwaitingApproval); err != nil {
				return false, err
			}

		case AwaitingApproval:
			if !g.Notified {
				m.notify(ctx, notify.EventReadyForReview, notify.SeverityInfo, g.Phase, m.readyMessage(g))
				g.Notified = true
				if err := m.cfg.Store.SaveGate(m.cfg.Feature, g); err != nil {
					return false, fmt.Errorf("save gate: %w", err)
				}
			}
			return false, nil

		default:
			return false, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, g.State)
		}
	}
}

func (m *Manager) pollCI(ctx context.Context, g *PhaseGate) (pr.Status, error) {
	if m.cfg.Review == nil {
		return pr.StatusPassed, nil
	}
	for {
		if err := m.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", errPollStopped, err)
		}
		status, err := m.cfg.Review.CheckStatus(ctx, g.ReviewID)
		if err != nil {
			return "", err
		}
		if status != pr.StatusPending {
			return status, nil
		}
		m.logger.Debug("CI pending", "phase", g.Phase, "review", g.ReviewID)
	}
}

// Approve closes a phase held at AwaitingApproval. Only verified events
// for this feature are accepted.
func (m *Manager) Approve(ctx context.Context, ev approval.Event) error {
	if !ev.Verified() {
		return ErrUnverified
	}
	if ev.Feature != m.cfg.Feature {
		return fmt.Errorf("%w: %s", ErrWrongFeature, ev.Feature)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	g, err := m.State(ev.Phase)
	if err != nil {
		return err
	}
	if g.State != AwaitingApproval {
		return fmt.Errorf("%w: phase %d is %s", ErrNotAwaitingApproval, ev.Phase, g.State)
	}
	g.Approver = ev.Approver
	if g.Empty {
		return m.close(ctx, g, OutcomeEmpty, notify.SeverityInfo,
			fmt.Sprintf("phase %d closed empty, approved by %s", g.Phase, ev.Approver))
	}
	return m.close(ctx, g, OutcomeApproved, notify.SeverityInfo,
		fmt.Sprintf("phase %d approved by %s", g.Phase, ev.Approver))
}

// close is the only way into Closed. It records the outcome, announces
// it, promotes the phase retrospective and runs the close hook.
func (m *Manager) close(ctx context.Context, g *PhaseGate, outcome Outcome, severity, msg string) error {
	g.Outcome = outcome
	if err := m.move(g, Closed); err != nil {
		return err
	}
	m.notify(ctx, notify.EventPhaseClosed, severity, g.Phase, msg)

	if m.cfg.Promoter != nil {
		items, err := m.cfg.Promoter.Promote(m.cfg.Feature, g.Phase, g.Name)
		if err != nil {
			m.logger.Warn("retrospective promotion failed", "phase", g.Phase, "error", err)
		} else if len(items) > 0 {
			m.logger.Info("promoted retrospective items", "phase", g.Phase, "count", len(items))
		}
	}
	if m.cfg.OnClose != nil {
		if err := m.cfg.OnClose(ctx, *g); err != nil {
			m.logger.Warn("close hook failed", "phase", g.Phase, "error", err)
		}
	}
	return nil
}

// readyMessage tells reviewers what approving means. Phase branches are
// cut from trunk, so an approved phase must be merged before the next one
// begins.
func (m *Manager) readyMessage(g *PhaseGate) string {
	if g.Empty {
		return fmt.Sprintf("phase %d (%s) produced no commits; approve to close it empty", g.Phase, g.Name)
	}
	trunk := m.cfg.VCS.Trunk()
	return fmt.Sprintf("phase %d (%s) is ready for review on %s; merge it into %s before approving, phase %d branches from %s",
		g.Phase, g.Name, g.Branch, trunk, g.Phase+1, trunk)
}

func (m *Manager) notify(ctx context.Context, t notify.EventType, severity string, phase int, msg string) {
	ev := notify.NewEvent(t, m.cfg.Feature, severity, msg)
	ev.Phase = phase
	if err := m.notifier.Notify(ctx, ev); err != nil {
		m.logger.Warn("notification failed", "event", t, "error", err)
	}
}
