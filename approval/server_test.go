package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingApprover struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingApprover) Approve(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingApprover) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func postApproval(t *testing.T, h http.Handler, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/approvals", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestServer_Approve(t *testing.T) {
	v, err := NewVerifier(TokenConfig{Secret: testSecret}, nil)
	require.NoError(t, err)
	approver := &recordingApprover{}
	s, err := NewServer(v, approver, "", nil)
	require.NoError(t, err)

	token, err := Issue(TokenConfig{Secret: testSecret}, "003-add-caching", 1, "alice")
	require.NoError(t, err)

	rec, resp := postApproval(t, s.Handler(), Request{Token: token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "approved", resp.Status)
	assert.Equal(t, "alice", resp.Approver)

	events := approver.Events()
	require.Len(t, events, 1)
	assert.True(t, events[0].Verified())
	assert.Equal(t, 1, events[0].Phase)
}

func TestServer_Rejections(t *testing.T) {
	v, err := NewVerifier(TokenConfig{Secret: testSecret}, nil)
	require.NoError(t, err)

	t.Run("bad token", func(t *testing.T) {
		approver := &recordingApprover{}
		s, err := NewServer(v, approver, "", nil)
		require.NoError(t, err)
		rec, resp := postApproval(t, s.Handler(), Request{Token: "forged"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "rejected", resp.Status)
		assert.Empty(t, approver.Events())
	})

	t.Run("empty request", func(t *testing.T) {
		s, err := NewServer(v, &recordingApprover{}, "", nil)
		require.NoError(t, err)
		rec, _ := postApproval(t, s.Handler(), Request{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("approver refuses", func(t *testing.T) {
		s, err := NewServer(v, &recordingApprover{err: errors.New("phase 1 is in_progress, not awaiting approval")}, "", nil)
		require.NoError(t, err)
		token, _ := Issue(TokenConfig{Secret: testSecret}, "003-add-caching", 1, "alice")
		rec, resp := postApproval(t, s.Handler(), Request{Token: token})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, resp.Error, "not awaiting approval")
	})
}

func TestServer_Health(t *testing.T) {
	v, _ := NewVerifier(TokenConfig{}, nil)
	s, err := NewServer(v, &recordingApprover{}, "", nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServer_Mount(t *testing.T) {
	v, _ := NewVerifier(TokenConfig{}, nil)
	s, err := NewServer(v, &recordingApprover{}, "", nil)
	require.NoError(t, err)
	s.Mount("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("phaseflow_tasks_total 3\n"))
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phaseflow_tasks_total")
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, &recordingApprover{}, "", nil)
	assert.Error(t, err)
}

func TestListen_NATS(t *testing.T) {
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true}
	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go server.Start()
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	require.True(t, server.ReadyForConnections(5*time.Second), "nats server not ready")

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	v, err := NewVerifier(TokenConfig{Secret: testSecret}, nil)
	require.NoError(t, err)
	approver := &recordingApprover{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Listen(ctx, nc, "", v, approver, nil) }()

	token, err := Issue(TokenConfig{Secret: testSecret}, "003-add-caching", 2, "dana")
	require.NoError(t, err)
	data, _ := json.Marshal(Request{Token: token})

	// Retry until the subscription is live.
	var msg *nats.Msg
	require.Eventually(t, func() bool {
		msg, err = nc.Request(DefaultSubject, data, 200*time.Millisecond)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	var resp Response
	require.NoError(t, json.Unmarshal(msg.Data, &resp))
	assert.Equal(t, "approved", resp.Status)
	assert.Equal(t, 2, resp.Phase)
	require.Len(t, approver.Events(), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}
