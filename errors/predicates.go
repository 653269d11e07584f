package errors

import (
	"errors"
	"strings"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/scheduler"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// IsBuildError reports a structural or dependency error in a task list.
func IsBuildError(err error) bool {
	return errors.Is(err, taskgraph.ErrStructural) || errors.Is(err, taskgraph.ErrDependency)
}

// IsDriftHalt reports a critical drift pause.
func IsDriftHalt(err error) bool {
	return errors.Is(err, drift.ErrCriticalHalt)
}

// IsTaskFailure reports a failed task or a stalled phase.
func IsTaskFailure(err error) bool {
	return errors.Is(err, scheduler.ErrTaskFailed) || errors.Is(err, scheduler.ErrPhaseStalled)
}

// IsGateError reports a release gate failure.
func IsGateError(err error) bool {
	var g *gate.GateError
	return errors.As(err, &g)
}

// IsApprovalRejected reports an approval that failed verification.
func IsApprovalRejected(err error) bool {
	return errors.Is(err, approval.ErrInvalidToken) ||
		errors.Is(err, approval.ErrTokenExpired) ||
		errors.Is(err, approval.ErrUnknownSigner) ||
		errors.Is(err, gate.ErrUnverified) ||
		errors.Is(err, gate.ErrWrongFeature)
}

// IsAuthError checks if an error is authentication-related.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unauthenticated") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "401 bad credentials") ||
		strings.Contains(errStr, " 401 ")
}

// IsConnectionError checks if an error is connection-related.
// This includes TLS errors, timeouts, and network connectivity issues.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionFailed) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	// Network connectivity
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "no servers available") {
		return true
	}
	if strings.Contains(errStr, "x509") || strings.Contains(errStr, "tls:") {
		return true
	}
	return strings.Contains(errStr, "i/o timeout") || strings.Contains(errStr, "tls handshake timeout")
}
