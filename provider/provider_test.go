package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/randalmurphal/llmkit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/prompt"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/task"
)

func TestRouter_PriorityAndFallback(t *testing.T) {
	generic := &MockProvider{ProviderName: "generic"}
	golang := &MockProvider{ProviderName: "go"}
	sql := &MockProvider{ProviderName: "sql"}
	migrations := &MockProvider{ProviderName: "migrations"}

	r := NewRouter(generic)
	r.Register("go", 10, ByExtension("go"), golang)
	r.Register("sql", 10, ByExtension(".sql"), sql)
	r.Register("migrations", 20, ByPathPrefix("db/migrations/"), migrations)

	tests := []struct {
		name      string
		paths     []string
		wantRoute string
	}{
		{"go file", []string{"internal/cache/client.go"}, "go"},
		{"sql file", []string{"db/schema.sql"}, "sql"},
		{"migration beats extension", []string{"db/migrations/001_init.sql"}, "migrations"},
		{"equal priority keeps registration order", []string{"db/q.sql", "main.go"}, "go"},
		{"no claims", nil, "fallback"},
		{"unknown extension", []string{"README.md"}, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, route, err := r.Route(Descriptor{TaskID: "T001", Paths: tt.paths})
			require.NoError(t, err)
			assert.Equal(t, tt.wantRoute, route)
		})
	}
}

func TestRouter_NoFallback(t *testing.T) {
	r := NewRouter(nil)
	_, _, err := r.Route(Descriptor{TaskID: "T009"})
	assert.True(t, errors.Is(err, ErrNoProvider))
}

func TestRouter_RegisterRules(t *testing.T) {
	py := &MockProvider{ProviderName: "py"}
	docs := &MockProvider{ProviderName: "docs"}
	r := NewRouter(&MockProvider{})

	err := r.RegisterRules([]Rule{
		{Name: "python", Provider: "py", Priority: 5, Technologies: []string{"Python"}, Extensions: []string{"py"}},
		{Provider: "docs", Priority: 1, Kinds: []string{"docs"}},
	}, map[string]Provider{"py": py, "docs": docs})
	require.NoError(t, err)

	p, route, err := r.Route(Descriptor{Technologies: []string{"python"}, Paths: []string{"app/main.py"}})
	require.NoError(t, err)
	assert.Equal(t, "python", route)
	assert.Same(t, py, p)

	// Technology alone is not enough when the rule also names extensions.
	_, route, _ = r.Route(Descriptor{Technologies: []string{"python"}, Paths: []string{"README.md"}, Kind: task.Docs})
	assert.Equal(t, "docs", route)

	err = r.RegisterRules([]Rule{{Name: "bad", Provider: "missing"}}, map[string]Provider{})
	assert.Error(t, err)
}

func TestParseReport(t *testing.T) {
	reply := `Added the cache client and wired it into the store.

## Status

done

## Changed files

- added: internal/cache/client.go
- modified: ` + "`internal/store/store.go`" + `
- deleted: internal/cache/old.go
- docs/cache.md

## Notes

### What worked
- Table-driven tests
- ...

### Workarounds
- Pinned the client version in go.mod
`
	out := ParseReport(reply)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, "Added the cache client and wired it into the store.", out.Summary)
	assert.Equal(t, []FileChange{
		{Path: "internal/cache/client.go", Op: OpAdded},
		{Path: "internal/store/store.go", Op: OpModified},
		{Path: "internal/cache/old.go", Op: OpDeleted},
		{Path: "docs/cache.md", Op: OpModified},
	}, out.Changes)
	assert.Equal(t, []string{"Table-driven tests"}, out.Notes[retro.SectionWorked])
	assert.Len(t, out.Notes[retro.SectionWorkarounds], 1)

	assert.Equal(t, StatusFailed, ParseReport("I could not finish.").Status)
	assert.Equal(t, StatusFailed, ParseReport("## Status\n\nfailed\n").Status)
}

func TestAgent_Invoke(t *testing.T) {
	var gotSystem, gotUser string
	fast := llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		gotSystem = req.SystemPrompt
		gotUser = req.Messages[0].Content
		return &llm.CompletionResponse{Content: "Done.\n\n## Status\n\ndone\n\n## Changed files\n\n- modified: docs/cache.md\n"}, nil
	})
	standard := llm.NewMockClient("").WithResponses("## Status\n\ndone\n")

	agent, err := NewAgent(AgentConfig{
		Clients: map[model.ModelName]llm.Client{model.ModelHaiku: fast},
		Default: standard,
		Prompts: prompt.NewLoader(t.TempDir()),
	})
	require.NoError(t, err)
	assert.Equal(t, "agent", agent.Name())

	out, err := agent.Invoke(context.Background(), Descriptor{
		Feature:     "003-add-caching",
		TaskID:      "T004",
		Phase:       3,
		PhaseName:   "Polish",
		Description: "Document caching in docs/cache.md",
		Paths:       []string{"docs/cache.md"},
		Kind:        task.Docs,
		Context:     map[string]string{"Plan": "Use an LRU."},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, []string{"docs/cache.md"}, out.ChangedPaths())
	assert.Contains(t, gotSystem, "Task T004 (docs) in phase 3: Polish")
	assert.Contains(t, gotUser, "T004: Document caching in docs/cache.md")
	assert.Contains(t, gotUser, "## Plan\n\nUse an LRU.")
	assert.Equal(t, 0, standard.CallCount(), "docs tasks go to the fast model")

	_, err = agent.Invoke(context.Background(), Descriptor{TaskID: "T005", Kind: task.Implement})
	require.NoError(t, err)
	assert.Equal(t, 1, standard.CallCount())
}

func TestAgent_ClientError(t *testing.T) {
	failing := llm.NewMockClient("").WithCompleteFunc(func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("rate limited")
	})
	agent, err := NewAgent(AgentConfig{Default: failing, Prompts: prompt.NewLoader(t.TempDir())})
	require.NoError(t, err)

	_, err = agent.Invoke(context.Background(), Descriptor{TaskID: "T001", Kind: task.Implement})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestNewAgent_Validation(t *testing.T) {
	_, err := NewAgent(AgentConfig{Prompts: prompt.NewLoader(t.TempDir())})
	assert.Error(t, err)
	_, err = NewAgent(AgentConfig{Default: llm.NewMockClient("")})
	assert.Error(t, err)
}

func TestCommand_Invoke(t *testing.T) {
	runner := git.NewSequentialMockRunner()
	runner.AddOutput("generated 2 files\n", nil)
	runner.AddOutputError("", "exit status 1", nil)

	c := NewCommand("gen", "make", []string{"gen", "TASK=$TASK_ID", "FILES=$PATHS"}, runner, nil)
	d := Descriptor{TaskID: "T002", WorkDir: "/repo", Paths: []string{"api/a.go", "api/b.go"}}

	out, err := c.Invoke(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, []string{"api/a.go", "api/b.go"}, out.ChangedPaths())
	assert.Equal(t, "generated 2 files", out.Summary)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/repo", calls[0].Dir)
	assert.Equal(t, "make", calls[0].Name)
	assert.Equal(t, []string{"gen", "TASK=T002", "FILES=api/a.go api/b.go"}, calls[0].Args)

	out, err = c.Invoke(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.True(t, strings.Contains(out.Summary, "exit status 1"))
	assert.False(t, out.Notes.Empty())
}

func TestMockProvider_Defaults(t *testing.T) {
	m := &MockProvider{}
	out, err := m.Invoke(context.Background(), Descriptor{Paths: []string{"x.go"}})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, out.Status)
	assert.Equal(t, 1, m.CallCount())
	assert.Equal(t, "mock", m.Name())
}
