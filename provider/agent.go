package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/llmkit/model"

	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/prompt"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/task"
)

// AgentConfig configures an Agent.
type AgentConfig struct {
	// Name identifies the provider in routes and logs. Defaults to "agent".
	Name string

	// Clients maps models to LLM clients. A task whose model has no entry
	// uses Default.
	Clients map[model.ModelName]llm.Client
	Default llm.Client

	// Selector picks the model for a task kind. Defaults to task.NewSelector().
	Selector *model.Selector

	// Prompts renders the system prompt ("execute").
	Prompts *prompt.Loader

	Logger *slog.Logger
}

// Agent is a capability provider backed by an LLM coding agent. The agent
// edits files in the working directory and ends its reply with a report
// that Agent parses into an Outcome.
type Agent struct {
	name     string
	clients  map[model.ModelName]llm.Client
	fallback llm.Client
	selector *model.Selector
	prompts  *prompt.Loader
	logger   *slog.Logger
}

// NewAgent creates an agent provider.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.Default == nil && len(cfg.Clients) == 0 {
		return nil, errors.New("agent provider: no llm client configured")
	}
	if cfg.Prompts == nil {
		return nil, errors.New("agent provider: prompt loader is required")
	}
	a := &Agent{
		name:     cfg.Name,
		clients:  cfg.Clients,
		fallback: cfg.Default,
		selector: cfg.Selector,
		prompts:  cfg.Prompts,
		logger:   cfg.Logger,
	}
	if a.name == "" {
		a.name = "agent"
	}
	if a.selector == nil {
		a.selector = task.NewSelector()
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Name implements Provider.
func (a *Agent) Name() string { return a.name }

func (a *Agent) client(m model.ModelName) llm.Client {
	if c, ok := a.clients[m]; ok {
		return c
	}
	return a.fallback
}

// Invoke implements Provider.
func (a *Agent) Invoke(ctx context.Context, d Descriptor) (Outcome, error) {
	m := a.selector.Select(d.Kind)
	client := a.client(m)
	if client == nil {
		return Outcome{}, fmt.Errorf("agent provider: no client for model %s", m)
	}

	system, err := a.prompts.Task(prompt.TaskVars{
		Feature:      d.Feature,
		TaskID:       d.TaskID,
		Kind:         string(d.Kind),
		Phase:        d.Phase,
		PhaseName:    d.PhaseName,
		Paths:        d.Paths,
		Technologies: d.Technologies,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("agent provider: %w", err)
	}

	result, err := client.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: taskPrompt(d)}},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("agent provider %s: %w", d.TaskID, err)
	}

	out := ParseReport(result.Content)
	a.logger.Info("agent task finished",
		"task", d.TaskID,
		"model", string(m),
		"status", out.Status,
		"changes", len(out.Changes),
		"tokens_in", result.Usage.InputTokens,
		"tokens_out", result.Usage.OutputTokens)

	if stray := outsideClaims(d.Paths, out.Changes); len(stray) > 0 {
		a.logger.Warn("agent changed unclaimed files", "task", d.TaskID, "paths", stray)
	}
	return out, nil
}

// taskPrompt builds the user message: the task plus the relevant spec and
// plan sections, in a stable order.
func taskPrompt(d Descriptor) string {
	b := prompt.NewBuilder().
		AddSection("Task", fmt.Sprintf("%s: %s", d.TaskID, d.Description))
	if d.Story != "" {
		b.Add("Story: " + d.Story)
	}

	names := make([]string, 0, len(d.Context))
	for n := range d.Context {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		b.AddSection(n, d.Context[n])
	}
	return b.Build()
}

// ParseReport reads the trailing report of an agent reply. A reply without
// a Status section counts as failed: the agent did not confirm the work.
func ParseReport(content string) Outcome {
	out := Outcome{Status: StatusFailed, Notes: retro.Fragment{}}

	var preamble strings.Builder
	for _, sec := range artifact.ParseSections([]byte(content)) {
		switch strings.ToLower(sec.Name) {
		case "status":
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(sec.Body)), "done") {
				out.Status = StatusDone
			}
		case "changed files", "changes":
			out.Changes = parseChanges(sec.Body)
		case "notes":
			out.Notes = retro.ParseFragment(sec.Body)
		case "":
			preamble.WriteString(sec.Body)
		}
	}
	out.Summary = firstLine(preamble.String())
	return out
}

func parseChanges(body string) []FileChange {
	var changes []FileChange
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		item := strings.TrimSpace(line[2:])
		op := OpModified
		if i := strings.Index(item, ":"); i > 0 {
			switch ChangeOp(strings.ToLower(item[:i])) {
			case OpAdded:
				op = OpAdded
				item = item[i+1:]
			case OpModified:
				item = item[i+1:]
			case OpDeleted:
				op = OpDeleted
				item = item[i+1:]
			}
		}
		item = strings.Trim(strings.TrimSpace(item), "`")
		if item == "" || item == "..." {
			continue
		}
		changes = append(changes, FileChange{Path: item, Op: op})
	}
	return changes
}

func outsideClaims(claims []string, changes []FileChange) []string {
	var stray []string
	for _, c := range changes {
		inside := false
		for _, claim := range claims {
			claim = strings.TrimSuffix(claim, "/")
			if c.Path == claim || strings.HasPrefix(c.Path, claim+"/") {
				inside = true
				break
			}
		}
		if !inside {
			stray = append(stray, c.Path)
		}
	}
	return stray
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
