package gate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/provider"
	"github.com/randalmurphal/phaseflow/taskgraph"
	"github.com/randalmurphal/phaseflow/testutil"
)

func TestGate_RealRepoCommitsTaskFiles(t *testing.T) {
	ctx := context.Background()
	root := testutil.SetupTestRepoWithFiles(t, map[string]string{"app/app.go": "package app\n"})
	testutil.AddBareRemote(t, root)
	vcs, err := git.NewContext(root)
	require.NoError(t, err)

	h := newHarness(t, func(c *Config) {
		c.VCS = vcs
		c.Review = nil
	})
	task := &taskgraph.Task{ID: "T001", Phase: 1, Description: "Serve the app from pkg/server/ and app/app.go",
		Paths: []string{"app/app.go", "pkg/server/"}, Status: taskgraph.StatusDone}
	p := &taskgraph.Phase{Index: 1, Name: "Setup", Tasks: []*taskgraph.Task{task}}

	require.NoError(t, h.gate.BeginPhase(ctx, p))
	assert.Equal(t, "phaseflow/003-add-caching/p1-setup", testutil.GetCurrentBranch(t, root))

	testutil.WriteFile(t, root, "app/app.go", "package app\n\nfunc Run() {}\n")
	testutil.WriteFile(t, root, "pkg/server/server.go", "package server\n")
	testutil.WriteFile(t, root, "notes.txt", "scratch\n")

	require.NoError(t, h.gate.TaskDone(ctx, p, task, provider.Outcome{Status: provider.StatusDone}))

	g, err := h.gate.State(1)
	require.NoError(t, err)
	require.Len(t, g.Commits, 1)
	assert.Equal(t, "?? notes.txt", testutil.GitStatus(t, root), "files outside the claims stay uncommitted")

	proceed, err := h.gate.EndPhase(ctx, p)
	require.NoError(t, err)
	assert.False(t, proceed)
	assert.Equal(t, AwaitingApproval, h.state(t, 1))
}
