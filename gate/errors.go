package gate

import (
	"errors"
	"fmt"
)

// Gate errors.
var (
	// ErrCIFailed indicates the review request's CI failed.
	ErrCIFailed = errors.New("CI failed")

	// ErrCheckFailed indicates a pre-commit or pre-push check failed.
	ErrCheckFailed = errors.New("check failed")

	// ErrNotAwaitingApproval indicates an approval arrived for a phase
	// that is not held at AwaitingApproval.
	ErrNotAwaitingApproval = errors.New("phase is not awaiting approval")

	// ErrUnverified indicates an approval event that did not pass
	// verification.
	ErrUnverified = errors.New("approval event is not verified")

	// ErrWrongFeature indicates an approval for a different feature.
	ErrWrongFeature = errors.New("approval is for a different feature")

	// ErrPhaseReleased indicates new work for a phase already past review.
	ErrPhaseReleased = errors.New("phase already released for review")

	// ErrNotInProgress indicates a task finished while the gate was not
	// accepting commits.
	ErrNotInProgress = errors.New("release gate is not in progress")

	// ErrInvalidTransition indicates an illegal state change.
	ErrInvalidTransition = errors.New("invalid gate transition")

	errPollStopped = errors.New("CI polling stopped")
)

// GateError reports a failed version control or review operation. The
// gate has been rolled back to State.
type GateError struct {
	Phase int
	Op    string // "sync", "commit", "push", "review", "ci"
	From  State  // state the operation ran in
	State State  // state the gate rests in now
	Err   error
}

func (e *GateError) Error() string {
	if e.From == e.State {
		return fmt.Sprintf("gate phase %d: %s failed in %s: %v", e.Phase, e.Op, e.From, e.Err)
	}
	return fmt.Sprintf("gate phase %d: %s failed in %s, rolled back to %s: %v", e.Phase, e.Op, e.From, e.State, e.Err)
}

func (e *GateError) Unwrap() error {
	return e.Err
}

// CheckError reports a failed check with its output.
type CheckError struct {
	Check  string
	Output string
	Err    error
}

func (e *CheckError) Error() string {
	msg := fmt.Sprintf("check %s failed", e.Check)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *CheckError) Unwrap() []error {
	return []error{ErrCheckFailed, e.Err}
}
