package integrationtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/notify"
	"github.com/randalmurphal/phaseflow/scheduler"
	"github.com/randalmurphal/phaseflow/testutil"
)

func nextEvent(t *testing.T, sub *nats.Subscription) (string, notify.Event) {
	t.Helper()
	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	var ev notify.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	return msg.Subject, ev
}

// waitFor skips events until one of type want arrives.
func waitFor(t *testing.T, sub *nats.Subscription, want notify.EventType) (string, notify.Event) {
	t.Helper()
	for {
		subject, ev := nextEvent(t, sub)
		if ev.Type == want {
			return subject, ev
		}
	}
}

func TestNATS_EventsAndApproval(t *testing.T) {
	nc := startNATS(t)
	e := newEnv(t, envOptions{nats: nc})
	ctx := testutil.TestContext(t)

	sub, err := nc.SubscribeSync("phaseflow." + e.feature + ".>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	v, err := e.engine.Verifier()
	require.NoError(t, err)
	listenCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- approval.Listen(listenCtx, nc, "", v, e.engine, nil) }()
	t.Cleanup(func() {
		stop()
		<-done
	})

	_, err = e.engine.Build(ctx, e.feature)
	require.NoError(t, err)
	res, err := e.engine.Run(ctx, e.feature)
	require.NoError(t, err)
	require.Equal(t, scheduler.RunAwaitingApproval, res.State)

	subject, ev := waitFor(t, sub, notify.EventReadyForReview)
	assert.Equal(t, "phaseflow."+e.feature+".ready_for_review", subject)
	assert.Equal(t, 1, ev.Phase)
	assert.Equal(t, e.feature, ev.Feature)

	token, err := e.engine.IssueToken(e.feature, 1, "bob")
	require.NoError(t, err)
	data, err := json.Marshal(approval.Request{Token: token})
	require.NoError(t, err)

	// Retry until the listener's subscription is live.
	var reply *nats.Msg
	require.Eventually(t, func() bool {
		reply, err = nc.Request(approval.DefaultSubject, data, 500*time.Millisecond)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	var resp approval.Response
	require.NoError(t, json.Unmarshal(reply.Data, &resp))
	assert.Equal(t, "approved", resp.Status)
	assert.Equal(t, "bob", resp.Approver)

	subject, ev = waitFor(t, sub, notify.EventPhaseClosed)
	assert.Equal(t, "phaseflow."+e.feature+".phase_closed", subject)
	assert.Equal(t, 1, ev.Phase)

	st, err := e.engine.Status(e.feature)
	require.NoError(t, err)
	assert.Equal(t, gate.Closed, st.Gate(1).State)
	assert.Equal(t, "bob", st.Gate(1).Approver)

	// A replayed approval is refused.
	reply, err = nc.Request(approval.DefaultSubject, data, 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(reply.Data, &resp))
	assert.NotEqual(t, "approved", resp.Status)
}
