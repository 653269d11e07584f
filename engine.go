package phaseflow

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/llmkit/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/config"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/metrics"
	"github.com/randalmurphal/phaseflow/notify"
	"github.com/randalmurphal/phaseflow/pr"
	"github.com/randalmurphal/phaseflow/project"
	"github.com/randalmurphal/phaseflow/prompt"
	"github.com/randalmurphal/phaseflow/provider"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/store"
)

const instrumentationName = "github.com/randalmurphal/phaseflow"

// Options customizes the components New would otherwise build from the
// project settings and policy.
type Options struct {
	// Fallback handles tasks no routing rule matches. Defaults to the LLM
	// agent provider.
	Fallback provider.Provider

	// Providers adds named providers that policy routes may refer to.
	// Entries override policy command providers of the same name.
	Providers map[string]provider.Provider

	// Review replaces the review platform detected from settings. Set
	// NoReview to run without one.
	Review   pr.Provider
	NoReview bool

	// Notifier is added to the notifiers configured in settings.
	Notifier notify.Notifier

	// NATS, when set, publishes engine events under phaseflow.<feature>.<type>.
	NATS *nats.Conn

	// Runner executes command providers and gate checks. Defaults to
	// git.NewExecRunner().
	Runner git.CommandRunner

	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

// Engine composes the artifact store, task graph builder, scheduler,
// release gate, drift detector and retrospective aggregator of one
// project. It implements approval.Approver.
type Engine struct {
	project   *project.Context
	artifacts *artifact.Store
	state     *store.Store
	retro     *retro.Aggregator
	surveyor  *drift.Surveyor
	compare   *drift.Comparator
	router    *provider.Router
	review    pr.Provider
	prompts   *prompt.Loader
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger

	// mu serializes operations that load and mutate a feature's graph.
	mu sync.Mutex
}

var _ approval.Approver = (*Engine)(nil)

// New opens the engine's stores below the project state directory and
// wires providers, review platform and notifiers from settings and policy.
func New(pc *project.Context, opts Options) (*Engine, error) {
	if pc == nil {
		return nil, errors.New("phaseflow: project context is required")
	}
	logger := pc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := pc.EnsureStateDir(); err != nil {
		return nil, err
	}

	artifacts, err := artifact.NewStore(pc.StateDir, artifact.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	state, err := store.OpenInRoot(pc.Root)
	if err != nil {
		return nil, err
	}
	agg, err := retro.NewAggregator(retro.Config{
		Store:       artifacts,
		MemoryPath:  pc.MemoryPath(),
		DenyMarkers: pc.Policy.Memory.DenyMarkers,
		Logger:      logger,
	})
	if err != nil {
		state.Close()
		return nil, err
	}

	e := &Engine{
		project:   pc,
		artifacts: artifacts,
		state:     state,
		retro:     agg,
		surveyor:  drift.NewSurveyor(pc.Root, drift.WithSurveyLogger(logger)),
		compare:   pc.Policy.Comparator(),
		prompts:   prompt.NewLoader(pc.Root),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		logger:    logger,
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(instrumentationName)
	}

	if e.router, err = e.newRouter(opts); err != nil {
		state.Close()
		return nil, err
	}
	switch {
	case opts.NoReview:
	case opts.Review != nil:
		e.review = opts.Review
	default:
		if e.review, err = e.newReview(); err != nil {
			state.Close()
			return nil, err
		}
	}
	e.notifier = e.newNotifier(opts)
	return e, nil
}

// Close releases the run-state database.
func (e *Engine) Close() error {
	return e.state.Close()
}

// Project returns the project context.
func (e *Engine) Project() *project.Context { return e.project }

// Artifacts returns the artifact store.
func (e *Engine) Artifacts() *artifact.Store { return e.artifacts }

// State returns the run-state store.
func (e *Engine) State() *store.Store { return e.state }

// Router returns the provider routing table.
func (e *Engine) Router() *provider.Router { return e.router }

// newRouter registers policy command providers and routes. The agent is
// both the fallback and the "agent" route target.
func (e *Engine) newRouter(opts Options) (*provider.Router, error) {
	runner := opts.Runner
	if runner == nil {
		runner = git.NewExecRunner()
	}

	fallback := opts.Fallback
	if fallback == nil {
		agent, err := e.newAgent()
		if err != nil {
			return nil, err
		}
		fallback = agent
	}

	registry := map[string]provider.Provider{config.AgentProvider: fallback}
	for name, c := range e.project.Policy.Commands {
		registry[name] = provider.NewCommand(name, c.Program, c.Args, runner, e.logger)
	}
	for name, p := range opts.Providers {
		registry[name] = p
	}

	r := provider.NewRouter(fallback)
	if err := r.RegisterRules(e.project.Policy.Routes, registry); err != nil {
		return nil, err
	}
	return r, nil
}

// newAgent builds the LLM agent provider with one CLI client per model
// tier, all working in the project root.
func (e *Engine) newAgent() (*provider.Agent, error) {
	root := e.project.Root
	clients := make(map[model.ModelName]llm.Client)
	for _, m := range []model.ModelName{model.ModelOpus, model.ModelSonnet, model.ModelHaiku} {
		clients[m] = llm.NewClaudeCLI(
			llm.WithModel(string(m)),
			llm.WithWorkdir(root),
			llm.WithDangerouslySkipPermissions(),
		)
	}
	return provider.NewAgent(provider.AgentConfig{
		Name:    config.AgentProvider,
		Clients: clients,
		Default: clients[model.ModelSonnet],
		Prompts: e.prompts,
		Logger:  e.logger,
	})
}

// newReview creates the review platform client. With no platform set and
// no recognizable remote the engine runs without one.
func (e *Engine) newReview() (pr.Provider, error) {
	s := e.project.Settings
	if s.ReviewPlatform == "none" {
		return nil, nil
	}

	remoteURL, err := e.project.Git.GetRemoteURL(s.Remote)
	if err != nil && s.ReviewPlatform == "" {
		e.logger.Info("no remote configured, review requests disabled", "remote", s.Remote)
		return nil, nil
	}

	cfg := pr.Config{
		Platform:  s.ReviewPlatform,
		GitLabURL: s.GitLabURL,
		Project:   s.GitLabProject,
		Repo:      s.GitHubRepo,
		Options: pr.Options{
			Base:      firstNonEmpty(s.ReviewBase, s.Trunk),
			Reviewers: s.Reviewers,
			Draft:     s.ReviewDraft,
		},
	}
	if cfg.Platform == "" {
		platform, derr := pr.DetectProvider(remoteURL)
		if derr != nil || (platform != "github" && platform != "gitlab") {
			e.logger.Info("remote is not a supported review platform, review requests disabled", "remote", remoteURL)
			return nil, nil
		}
		cfg.Platform = platform
	}
	cfg.Token = s.GitHubToken
	if cfg.Platform == "gitlab" {
		cfg.Token = s.GitLabToken
	}

	p, err := pr.New(remoteURL, cfg)
	if err != nil {
		return nil, fmt.Errorf("review platform: %w", err)
	}
	return p, nil
}

func (e *Engine) newNotifier(opts Options) notify.Notifier {
	s := e.project.Settings
	notifiers := []notify.Notifier{notify.NewLogNotifier(e.logger)}
	if s.NotifySlack != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(s.NotifySlack))
	}
	if s.NotifyWebhook != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(s.NotifyWebhook, nil))
	}
	if opts.NATS != nil {
		notifiers = append(notifiers, notify.NewNATSNotifier(opts.NATS, notify.DefaultSubjectPrefix))
	}
	if opts.Notifier != nil {
		notifiers = append(notifiers, opts.Notifier)
	}
	return notify.NewMultiNotifier(notifiers...)
}

// newGate builds the release gate of one feature.
func (e *Engine) newGate(feature string) (*gate.Manager, error) {
	checks := e.project.Policy.Checks
	var preCommit, prePush []gate.Check
	for _, line := range checks.PreCommit {
		preCommit = append(preCommit, gate.ParseCommand(line))
	}
	if checks.Secrets {
		preCommit = append(preCommit, gate.NewSecretCheck(e.project.Root))
	}
	for _, line := range checks.PrePush {
		prePush = append(prePush, gate.ParseCommand(line))
	}

	return gate.New(gate.Config{
		Feature:      feature,
		VCS:          e.project.Git,
		Review:       e.review,
		Store:        e.state,
		PreCommit:    preCommit,
		PrePush:      prePush,
		Summarizer:   gate.NewPromptSummarizer(e.prompts),
		Promoter:     e.retro,
		OnClose:      e.rebaselineOnClose(feature),
		Notifier:     e.notifier,
		Metrics:      e.metrics,
		PollInterval: e.project.Settings.PollInterval,
		Logger:       e.logger,
	})
}

// Verifier builds the approval verifier from the configured secret and
// allowed-signers file. A missing signers file disables SSH approvals.
func (e *Engine) Verifier() (*approval.Verifier, error) {
	var signers []approval.Signer
	if path := e.project.AllowedSignersPath(); path != "" {
		loaded, err := approval.LoadAllowedSigners(path)
		switch {
		case err == nil:
			signers = loaded
		case errors.Is(err, fs.ErrNotExist):
			e.logger.Debug("no allowed signers file", "path", path)
		default:
			return nil, err
		}
	}
	return approval.NewVerifier(e.TokenConfig(), signers)
}

// TokenConfig returns the approval token settings.
func (e *Engine) TokenConfig() approval.TokenConfig {
	return approval.TokenConfig{Secret: []byte(e.project.Settings.ApprovalSecret)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
