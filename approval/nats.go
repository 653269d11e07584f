package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject approval requests arrive on.
const DefaultSubject = "phaseflow.approve"

// Listen applies approval requests published on subject until ctx is
// done. Requests with a reply subject get a Response back.
func Listen(ctx context.Context, nc *nats.Conn, subject string, v *Verifier, a Approver, logger *slog.Logger) error {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	msgs := make(chan *nats.Msg, 16)
	sub, err := nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()
	logger.Info("listening for approvals", "subject", subject)

	for {
		select {
		case msg := <-msgs:
			resp := handleMsg(ctx, msg.Data, v, a, logger)
			if msg.Reply == "" {
				continue
			}
			data, _ := json.Marshal(resp)
			if err := msg.Respond(data); err != nil {
				logger.Warn("failed to reply to approval", "error", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func handleMsg(ctx context.Context, data []byte, v *Verifier, a Approver, logger *slog.Logger) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{Status: "rejected", Error: "invalid request body"}
	}
	ev, err := v.Verify(req)
	if err != nil {
		logger.Warn("rejected approval", "error", err)
		return Response{Status: "rejected", Error: err.Error()}
	}
	if err := a.Approve(ctx, ev); err != nil {
		logger.Warn("approval not applied", "feature", ev.Feature, "phase", ev.Phase, "error", err)
		return Response{Status: "conflict", Feature: ev.Feature, Phase: ev.Phase, Error: err.Error()}
	}
	logger.Info("approval applied", "feature", ev.Feature, "phase", ev.Phase, "approver", ev.Approver, "method", ev.Method)
	return Response{Status: "approved", Feature: ev.Feature, Phase: ev.Phase, Approver: ev.Approver}
}
