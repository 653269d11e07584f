package integrationtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/scheduler"
	"github.com/randalmurphal/phaseflow/taskgraph"
	"github.com/randalmurphal/phaseflow/testutil"
)

// approveOverHTTP posts a freshly issued token to the approval webhook.
func approveOverHTTP(t *testing.T, e *env, srv *httptest.Server, phase int) approval.Response {
	t.Helper()
	token, err := e.engine.IssueToken(e.feature, phase, "alice")
	require.NoError(t, err)

	body, err := json.Marshal(approval.Request{Token: token})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/approvals", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out approval.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	if resp.StatusCode != http.StatusOK {
		t.Logf("approval of phase %d returned %d: %s", phase, resp.StatusCode, out.Error)
	}
	return out
}

func TestPipeline_AgentThroughWebhookApprovals(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := testutil.TestContext(t)

	v, err := e.engine.Verifier()
	require.NoError(t, err)
	s, err := approval.NewServer(v, e.engine, "", nil)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	built, err := e.engine.Build(ctx, e.feature)
	require.NoError(t, err)
	assert.Len(t, built.Graph.Phases, 2)

	res, err := e.engine.Run(ctx, e.feature)
	require.NoError(t, err)
	assert.Equal(t, scheduler.RunAwaitingApproval, res.State)
	assert.Equal(t, 1, res.Phase)
	assert.ElementsMatch(t, []string{"T001", "T002"}, e.model.invoked())

	// Notes land in the open phase's draft retrospective.
	retroRef := artifact.Ref{Feature: e.feature, Kind: artifact.KindRetrospective, Name: retro.PhaseKey(1, "Setup")}
	draft, err := e.engine.Artifacts().Latest(retroRef)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusDraft, draft.Status)
	assert.Contains(t, string(draft.Body), universalNote)

	// Approving a phase that has not run is refused at the gate.
	out := approveOverHTTP(t, e, srv, 2)
	assert.Equal(t, "conflict", out.Status)

	out = approveOverHTTP(t, e, srv, 1)
	assert.Equal(t, "approved", out.Status)
	assert.Equal(t, "alice", out.Approver)

	st, err := e.engine.Status(e.feature)
	require.NoError(t, err)
	assert.Equal(t, gate.Closed, st.Gate(1).State)

	// Closing the gate promoted the universal note and activated the
	// retrospective; the file-specific workaround stays local.
	active, err := e.engine.Artifacts().Active(retroRef)
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusActive, active.Status)
	memory, err := os.ReadFile(e.engine.Project().MemoryPath())
	require.NoError(t, err)
	assert.Contains(t, string(memory), universalNote)
	assert.NotContains(t, string(memory), "Stubbed the clock")

	res, err = e.engine.Run(ctx, e.feature)
	require.NoError(t, err)
	assert.Equal(t, scheduler.RunAwaitingApproval, res.State)
	assert.Equal(t, 2, res.Phase)
	assert.Len(t, e.model.invoked(), 5)

	out = approveOverHTTP(t, e, srv, 2)
	assert.Equal(t, "approved", out.Status)

	res, err = e.engine.Run(ctx, e.feature)
	require.NoError(t, err)
	assert.Equal(t, scheduler.RunComplete, res.State)

	g, err := e.engine.Graph(e.feature)
	require.NoError(t, err)
	assert.Equal(t, 5, g.Counts()[taskgraph.StatusDone])
	assert.Len(t, e.model.invoked(), 5, "done tasks are never invoked again")

	// Every task committed on its phase branch; nothing is left over.
	assert.Empty(t, testutil.GitStatus(t, e.root))
	subjects := testutil.LogSubjects(t, e.root, "HEAD")
	require.GreaterOrEqual(t, len(subjects), 5)
}

func TestPipeline_ForgedWebhookApproval(t *testing.T) {
	e := newEnv(t, envOptions{})
	ctx := testutil.TestContext(t)

	_, err := e.engine.Build(ctx, e.feature)
	require.NoError(t, err)
	_, err = e.engine.Run(ctx, e.feature)
	require.NoError(t, err)

	forged, err := approval.Issue(approval.TokenConfig{Secret: []byte("ffffffffffffffffffffffffffffffff")}, e.feature, 1, "mallory")
	require.NoError(t, err)

	v, err := e.engine.Verifier()
	require.NoError(t, err)
	s, err := approval.NewServer(v, e.engine, "", nil)
	require.NoError(t, err)

	body, _ := json.Marshal(approval.Request{Token: forged})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/approvals", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	st, err := e.engine.Status(e.feature)
	require.NoError(t, err)
	assert.Equal(t, gate.AwaitingApproval, st.Gate(1).State)
}
