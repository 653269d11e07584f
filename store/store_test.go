package store

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInRoot(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

const taskList = `# Add caching

## Phase 1: Setup

- [ ] T001 Create module layout in go.mod
- [ ] T002 Add config loader in internal/config/config.go
- [ ] T003 Write the README in README.md
`

func buildGraph(t *testing.T) *taskgraph.Graph {
	t.Helper()
	list, err := taskgraph.Parse(strings.NewReader(taskList), "tasks.md")
	require.NoError(t, err)
	g, err := taskgraph.Build(list)
	require.NoError(t, err)
	return g
}

func TestOpen_CreatesDirectory(t *testing.T) {
	root := t.TempDir()
	s, err := OpenInRoot(root)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, filepath.Join(root, ".phaseflow", FileName))

	// Reopening an existing database keeps the schema.
	s, err = OpenInRoot(root)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRuns(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LastRun("003-add-caching")
	assert.True(t, errors.Is(err, ErrNotFound))

	first, err := s.BeginRun("003-add-caching")
	require.NoError(t, err)
	assert.Len(t, first.ID, 36)
	require.NoError(t, s.FinishRun(first.ID, "halted", 1))

	second, err := s.BeginRun("003-add-caching")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	last, err := s.LastRun("003-add-caching")
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, "running", last.State)
	assert.False(t, last.Finished())

	require.NoError(t, s.FinishRun(second.ID, "awaiting_approval", 2))
	last, err = s.LastRun("003-add-caching")
	require.NoError(t, err)
	assert.Equal(t, "awaiting_approval", last.State)
	assert.Equal(t, 2, last.Phase)
	assert.True(t, last.Finished())

	err = s.FinishRun("missing", "complete", 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecorder_TaskStates(t *testing.T) {
	s := openTestStore(t)
	g := buildGraph(t)
	rec := s.Recorder("003-add-caching", "run-1")

	t1, _ := g.Task("T001")
	t2, _ := g.Task("T002")
	t3, _ := g.Task("T003")

	t1.Status = taskgraph.StatusRunning
	require.NoError(t, rec.RecordTask(t1))
	t1.Status = taskgraph.StatusDone
	require.NoError(t, rec.RecordTask(t1))
	t2.Status = taskgraph.StatusRunning
	require.NoError(t, rec.RecordTask(t2))
	t3.Status = taskgraph.StatusSkipped
	t3.SkipReason = "docs later"
	require.NoError(t, s.Recorder("003-add-caching", "").RecordTask(t3))

	states, err := s.TaskStates("003-add-caching")
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, taskgraph.StatusDone, states["T001"].Status)
	assert.Equal(t, 1, states["T001"].Phase)
	assert.Equal(t, "docs later", states["T003"].SkipReason)

	other, err := s.TaskStates("004-other")
	require.NoError(t, err)
	assert.Empty(t, other)

	history, err := s.TaskHistory("003-add-caching", "T001")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, taskgraph.StatusRunning, history[0].Status)
	assert.Equal(t, taskgraph.StatusDone, history[1].Status)
	assert.Equal(t, "run-1", history[1].RunID)

	// A fresh graph picks up the persisted statuses; the interrupted
	// Running task comes back Failed.
	fresh := buildGraph(t)
	interrupted := ApplyTaskStates(fresh, states)
	assert.Equal(t, []string{"T002"}, interrupted)
	got := func(id string) taskgraph.Status {
		task, _ := fresh.Task(id)
		return task.Status
	}
	assert.Equal(t, taskgraph.StatusDone, got("T001"))
	assert.Equal(t, taskgraph.StatusFailed, got("T002"))
	assert.Equal(t, taskgraph.StatusSkipped, got("T003"))
}

func TestOpen_Reopen(t *testing.T) {
	root := t.TempDir()
	s, err := OpenInRoot(root)
	require.NoError(t, err)
	require.NoError(t, s.SaveGate("003-add-caching", &gate.PhaseGate{Phase: 1, State: gate.Closed, Outcome: gate.OutcomeNoWork}))
	require.NoError(t, s.Close())

	s, err = OpenInRoot(root)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	g, err := s.LoadGate("003-add-caching", 1)
	require.NoError(t, err)
	assert.Equal(t, gate.OutcomeNoWork, g.Outcome)
}

func TestGateStore(t *testing.T) {
	s := openTestStore(t)

	g, err := s.LoadGate("003-add-caching", 1)
	require.NoError(t, err)
	assert.Nil(t, g)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveGate("003-add-caching", &gate.PhaseGate{
		Phase:     1,
		Name:      "Setup",
		State:     gate.InProgress,
		Branch:    "phaseflow/003-add-caching/p1-setup",
		Commits:   []string{"abc123"},
		UpdatedAt: at,
	}))
	require.NoError(t, s.SaveGate("003-add-caching", &gate.PhaseGate{
		Phase:     1,
		Name:      "Setup",
		State:     gate.AwaitingApproval,
		Branch:    "phaseflow/003-add-caching/p1-setup",
		ReviewID:  42,
		Commits:   []string{"abc123", "def456"},
		Notified:  true,
		UpdatedAt: at,
	}))
	require.NoError(t, s.SaveGate("003-add-caching", &gate.PhaseGate{Phase: 2, Name: "Story A", State: gate.NotStarted}))
	require.NoError(t, s.SaveGate("003-add-caching", &gate.PhaseGate{
		Phase: 3, Name: "Polish", State: gate.Closed, Empty: true, Approver: "alice", Outcome: gate.OutcomeEmpty,
	}))

	g, err = s.LoadGate("003-add-caching", 1)
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, gate.AwaitingApproval, g.State)
	assert.Equal(t, 42, g.ReviewID)
	assert.Equal(t, []string{"abc123", "def456"}, g.Commits)
	assert.True(t, g.Notified)
	assert.True(t, at.Equal(g.UpdatedAt))

	g, err = s.LoadGate("003-add-caching", 3)
	require.NoError(t, err)
	assert.True(t, g.Empty)
	assert.Equal(t, gate.OutcomeEmpty, g.Outcome)

	all, err := s.Gates("003-add-caching")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].Phase)
	assert.Equal(t, 2, all[1].Phase)
	assert.Empty(t, all[1].Commits)
	assert.False(t, all[1].UpdatedAt.IsZero())
}

func TestDriftReports(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LatestDriftReport("003-add-caching")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.SaveDriftReport("003-add-caching", &drift.Report{Score: 4, Category: drift.CategoryNone})
	require.NoError(t, err)
	id, err := s.SaveDriftReport("003-add-caching", &drift.Report{
		Score:    9,
		Category: drift.CategoryCritical,
		Findings: []drift.Finding{{Section: "Dependencies", Description: "new major dependency", Weight: 5, Paths: []string{"go.mod"}}},
		FromHead: "aaa",
		ToHead:   "bbb",
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(1))

	r, err := s.LatestDriftReport("003-add-caching")
	require.NoError(t, err)
	assert.Equal(t, 9, r.Score)
	assert.Equal(t, drift.CategoryCritical, r.Category)
	require.Len(t, r.Findings, 1)
	assert.Equal(t, []string{"go.mod"}, r.Findings[0].Paths)
	assert.Equal(t, "bbb", r.ToHead)
}
