package approval

import (
	"context"
	"fmt"
	"time"
)

// Method records how an approval was verified.
type Method string

const (
	MethodToken Method = "token"
	MethodSSH   Method = "ssh"
)

// Event is a verified approval for one phase of a feature. Only a Verifier
// produces events with Verified() true.
type Event struct {
	Feature  string    `json:"feature"`
	Phase    int       `json:"phase"`
	Approver string    `json:"approver"`
	Method   Method    `json:"method"`
	TokenID  string    `json:"token_id,omitempty"`
	At       time.Time `json:"at"`

	verified bool
}

// Verified reports whether the event passed token or signature checks.
func (e Event) Verified() bool { return e.verified }

func (e Event) String() string {
	return fmt.Sprintf("%s phase %d approved by %s (%s)", e.Feature, e.Phase, e.Approver, e.Method)
}

// Approver applies verified approvals. The engine implements it by
// releasing the phase's release gate.
type Approver interface {
	Approve(ctx context.Context, ev Event) error
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, ev Event) error

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Request is the wire form of an approval, as posted to the webhook or
// published on NATS. It carries either a Token or a Signature over
// SigningPayload(Feature, Phase).
type Request struct {
	Token string `json:"token,omitempty"`

	Feature   string `json:"feature,omitempty"`
	Phase     int    `json:"phase,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// SigningPayload is the message an SSH approval signs.
func SigningPayload(feature string, phase int) []byte {
	return []byte(fmt.Sprintf("phaseflow approve %s phase %d", feature, phase))
}
