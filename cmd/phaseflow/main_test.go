package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/config"
	pferrors "github.com/randalmurphal/phaseflow/errors"
	"github.com/randalmurphal/phaseflow/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type cli struct {
	t    *testing.T
	root string
	app  *app
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	color.NoColor = true

	root := testutil.SetupTestRepoWithFiles(t, map[string]string{
		"go.mod":              "module example.com/app\n\ngo 1.22\n",
		"internal/app/app.go": "package app\n",
	})
	cfg := config.Phaseflow()
	cfg.ErrWriter = io.Discard
	return &cli{
		t:    t,
		root: root,
		app: &app{
			resolver: config.NewResolverWithPaths(cfg, filepath.Join(t.TempDir(), "config.yaml"), filepath.Join(root, ".phaseflow.yaml")),
		},
	}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	c.app.out = &out
	c.app.errOut = io.Discard
	cmd := newRootCmd(c.app)
	cmd.SetArgs(append([]string{"--root", c.root, "--set", config.KeyApprovalSecret + "=" + testSecret}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "phaseflow %v", args)
	return out
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLI_FeatureLifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("new", "Add caching")
	assert.Contains(t, out, "Created feature 001-add-caching")

	c.mustRun("put", "001", "spec", writeTemp(t, "spec.md", testutil.SampleSpec))
	c.mustRun("put", "001", "plan", writeTemp(t, "plan.md", testutil.SamplePlan))
	out = c.mustRun("put", "001", "tasks", writeTemp(t, "tasks.md", testutil.SampleTaskList))
	assert.Contains(t, out, "001-add-caching:tasks v1 (active)")

	out = c.mustRun("build", "001")
	assert.Contains(t, out, "2 phases, 5 tasks (0 done)")
	assert.Contains(t, out, "Phase 2: Story A")
	assert.Contains(t, out, "T004 [P]")

	out = c.mustRun("skip", "001", "T005", "--reason", "docs come later")
	assert.Contains(t, out, "T005 skipped")

	out = c.mustRun("status", "001")
	assert.Contains(t, out, "=== 001-add-caching ===")
	assert.Contains(t, out, "Phase 1: Setup  not_started")
	assert.Contains(t, out, "(docs come later)")

	out = c.mustRun("status")
	assert.Contains(t, out, "001-add-caching  0/5 done")

	out = c.mustRun("drift", "001")
	assert.Contains(t, out, "drift none (score 0)")

	// The state directory never dirties the working tree.
	assert.Empty(t, testutil.GitStatus(t, c.root))
}

func TestCLI_Errors(t *testing.T) {
	c := newCLI(t)
	c.mustRun("new", "Broken")
	c.mustRun("put", "001", "tasks", writeTemp(t, "tasks.md", "# Broken\n\nNo phases here.\n"))

	_, err := c.run("build", "001")
	require.Error(t, err)
	assert.Equal(t, pferrors.ExitBuild, pferrors.ExitCode(err))
	assert.Contains(t, err.Error(), "phaseflow build 001")

	_, err = c.run("status", "042")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Feature 042 does not exist.")

	_, err = c.run("put", "001", "survey", writeTemp(t, "s.md", "x"))
	assert.Error(t, err)

	_, err = c.run("skip", "001", "T001")
	assert.Error(t, err, "--reason is required")

	_, err = c.run("build", "001", "--incremental", "--drift")
	assert.Error(t, err)
}

func TestCLI_ApproveTokenRoundTrip(t *testing.T) {
	c := newCLI(t)
	c.mustRun("new", "Add caching")

	token := strings.TrimSpace(c.mustRun("approve", "001", "1", "--issue", "--approver", "alice"))
	require.NotEmpty(t, token)

	// Phase 1 never ran, so the verified approval reaches the gate and is
	// refused there.
	_, err := c.run("approve", "001", "1", "--token", token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the state this command needs")

	_, err = c.run("approve", "001", "2", "--token", token)
	require.Error(t, err)
	assert.Equal(t, pferrors.ExitApproval, pferrors.ExitCode(err))

	_, err = c.run("approve", "001", "1", "--token", "forged")
	require.Error(t, err)
	assert.Equal(t, pferrors.ExitApproval, pferrors.ExitCode(err))
}

func TestCLI_Config(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("config", "get", config.KeyTrunk)
	assert.Equal(t, "main (default)\n", out)

	c.mustRun("config", "set", config.KeyConcurrency, "2")
	out = c.mustRun("config", "get", config.KeyConcurrency)
	assert.Equal(t, "2 (local)\n", out)

	out = c.mustRun("config", "get")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, testSecret)

	_, err := c.run("config", "set", config.KeyGitHubToken, "ghp_x")
	assert.Error(t, err, "tokens cannot be stored in the project file")
}
