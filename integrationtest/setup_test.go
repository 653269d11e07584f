package integrationtest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	llm "github.com/randalmurphal/llmkit/claude"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/config"
	"github.com/randalmurphal/phaseflow/metrics"
	"github.com/randalmurphal/phaseflow/project"
	"github.com/randalmurphal/phaseflow/prompt"
	"github.com/randalmurphal/phaseflow/provider"
	"github.com/randalmurphal/phaseflow/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// claims maps each task of testutil.SampleTaskList to the file it writes.
var claims = map[string]string{
	"T001": "internal/cache/doc.go",
	"T002": "internal/config/cache.go",
	"T003": "internal/cache/client.go",
	"T004": "internal/cache/metrics.go",
	"T005": "docs/cache.md",
}

const universalNote = "Table-driven tests kept the cache behavior honest"

// fakeModel stands in for the LLM behind the agent provider. It edits the
// claimed file of whichever task the prompt names and answers with a
// report the agent can parse.
type fakeModel struct {
	root string

	mu    sync.Mutex
	tasks []string
}

func (m *fakeModel) complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	prompt := req.Messages[0].Content
	for id, path := range claims {
		if !strings.Contains(prompt, id+":") {
			continue
		}
		full := filepath.Join(m.root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(full, []byte("// "+id+"\n"), 0o644); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.tasks = append(m.tasks, id)
		m.mu.Unlock()

		report := "Implemented " + id + ".\n\n" +
			"## Status\n\ndone\n\n" +
			"## Changed files\n\n- added: " + path + "\n\n" +
			"## Notes\n\n" +
			"### What worked\n- " + universalNote + "\n\n" +
			"### Workarounds\n- Stubbed the clock in " + path + "\n"
		return &llm.CompletionResponse{Content: report}, nil
	}
	return &llm.CompletionResponse{Content: "## Status\n\nfailed\n"}, nil
}

func (m *fakeModel) invoked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.tasks...)
}

type env struct {
	root    string
	engine  *phaseflow.Engine
	model   *fakeModel
	feature string
}

type envOptions struct {
	nats *nats.Conn
}

// newEnv creates a git repository with a bare remote, an engine whose
// only provider is the LLM agent backed by fakeModel, and a feature with
// active spec, plan and task list.
func newEnv(t *testing.T, o envOptions) *env {
	t.Helper()

	root := testutil.SetupTestRepoWithFiles(t, map[string]string{
		"go.mod":              "module example.com/app\n\ngo 1.22\n",
		"internal/app/app.go": "package app\n",
	})
	testutil.AddBareRemote(t, root)

	cfg := config.Phaseflow()
	cfg.ErrWriter = io.Discard
	resolver := config.NewResolverWithPaths(cfg, filepath.Join(t.TempDir(), "config.yaml"), filepath.Join(root, ".phaseflow.yaml"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pc, err := project.Open(project.Options{
		Dir:      root,
		Resolver: resolver,
		Flags: map[string]string{
			config.KeyReviewPlatform: "none",
			config.KeyApprovalSecret: testSecret,
		},
		Logger: logger,
	})
	require.NoError(t, err)

	m := &fakeModel{root: root}
	agent, err := provider.NewAgent(provider.AgentConfig{
		Default: llm.NewMockClient("").WithCompleteFunc(m.complete),
		Prompts: prompt.NewLoader(root),
		Logger:  logger,
	})
	require.NoError(t, err)

	eng, err := phaseflow.New(pc, phaseflow.Options{
		Fallback: agent,
		NoReview: true,
		NATS:     o.nats,
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	f, err := eng.CreateFeature("Add caching")
	require.NoError(t, err)
	for kind, body := range map[artifact.Kind]string{
		artifact.KindSpecification: testutil.SampleSpec,
		artifact.KindPlan:          testutil.SamplePlan,
		artifact.KindTaskList:      testutil.SampleTaskList,
	} {
		_, err := eng.PutArtifact(f.ID, kind, []byte(body), true)
		require.NoError(t, err)
	}

	return &env{root: root, engine: eng, model: m, feature: f.ID}
}

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()

	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)
	go server.Start()
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	require.True(t, server.ReadyForConnections(5*time.Second), "nats server not ready")

	nc, err := nats.Connect(server.ClientURL(), nats.Name("phaseflow-integrationtest"))
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}
