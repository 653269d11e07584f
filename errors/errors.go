package errors

import "errors"

// CLI-level sentinel errors.
var (
	// ErrNotInGitRepo indicates the command requires a git repository.
	ErrNotInGitRepo = errors.New("not in a git repository")

	// ErrNoFeature indicates a command was given no feature and none
	// could be inferred.
	ErrNoFeature = errors.New("no feature selected")

	// ErrConnectionFailed indicates a remote service is unreachable.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrNotAuthenticated indicates a review platform rejected the token.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Exit codes returned by the CLI.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitBuild    = 2 // structural or dependency error
	ExitDrift    = 3 // critical drift halt
	ExitTask     = 4 // task failure or stalled phase
	ExitGate     = 5 // release gate failure
	ExitApproval = 6 // approval rejected
)
