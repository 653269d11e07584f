package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/artifact"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/pr"
	"github.com/randalmurphal/phaseflow/scheduler"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// CLIError wraps an error with user-friendly context and suggestions.
type CLIError struct {
	// Err is the underlying error
	Err error

	// Message states what went wrong and the state phaseflow is in
	Message string

	// Suggestion is the action the operator has to take
	Suggestion string

	// Details provides additional context (optional)
	Details string
}

func (e *CLIError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Details != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Details)
	}

	if e.Suggestion != "" {
		sb.WriteString("\n\n")
		sb.WriteString(e.Suggestion)
	}

	return sb.String()
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// Describe turns an error from the engine into a CLIError naming the
// machine state and the action required to continue. Errors it does not
// recognize are returned unchanged. feature fills in suggested commands.
func Describe(feature string, err error) error {
	if err == nil {
		return nil
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}
	if feature == "" {
		feature = "<feature>"
	}

	var (
		structural *taskgraph.StructuralError
		dependency *taskgraph.DependencyError
		halt       *drift.CriticalHalt
		gateErr    *gate.GateError
		taskErr    *scheduler.TaskExecutionError
	)

	switch {
	case errors.As(err, &structural):
		loc := structural.Source
		if structural.Line > 0 {
			loc = fmt.Sprintf("%s line %d", loc, structural.Line)
		}
		return &CLIError{
			Err:        err,
			Message:    "The task list is malformed; nothing was scheduled.",
			Details:    structural.Error(),
			Suggestion: fmt.Sprintf("Fix %s or regenerate the task list, then run 'phaseflow build %s'.", loc, feature),
		}

	case errors.As(err, &dependency):
		return &CLIError{
			Err:        err,
			Message:    "The task list has dependencies that cannot be resolved; nothing was scheduled.",
			Details:    dependency.Error(),
			Suggestion: fmt.Sprintf("Fix the references in the task list, then run 'phaseflow build %s'.", feature),
		}

	case errors.Is(err, taskgraph.ErrUnresolvedFailure):
		return &CLIError{
			Err:        err,
			Message:    "The re-plan would drop failed tasks that were never reset.",
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Reset each failed task with 'phaseflow reset %s <task>', then re-plan.", feature),
		}

	case errors.As(err, &halt):
		msg := fmt.Sprintf("Critical drift (score %d): execution is paused before the next phase.", halt.Report.Score)
		return &CLIError{
			Err:        err,
			Message:    msg,
			Details:    halt.Report.Summary(),
			Suggestion: fmt.Sprintf("Re-plan with 'phaseflow build --drift %s', then 'phaseflow run %s'.", feature, feature),
		}

	case errors.As(err, &gateErr):
		return &CLIError{
			Err:        err,
			Message:    fmt.Sprintf("Phase %d release gate: %s failed; the gate is %s.", gateErr.Phase, gateErr.Op, gateErr.State),
			Details:    gateErr.Err.Error(),
			Suggestion: gateSuggestion(feature, gateErr),
		}

	case errors.As(err, &taskErr):
		return &CLIError{
			Err:     err,
			Message: fmt.Sprintf("Task %s failed; phase %d is halted.", taskErr.TaskID, taskErr.Phase),
			Details: taskErr.Error(),
			Suggestion: fmt.Sprintf("Fix the cause, then 'phaseflow reset %s %s' and 'phaseflow run %s', or skip it with 'phaseflow skip %s %s'.",
				feature, taskErr.TaskID, feature, feature, taskErr.TaskID),
		}

	case errors.Is(err, scheduler.ErrPhaseStalled):
		return &CLIError{
			Err:        err,
			Message:    "The phase cannot make progress.",
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Check 'phaseflow status %s' for blocked tasks and reset or skip them.", feature),
		}

	case errors.Is(err, git.ErrGitDirty):
		return &CLIError{
			Err:        err,
			Message:    "The working tree has uncommitted changes; the phase was not started.",
			Suggestion: "Commit or stash your changes, then run again.",
		}

	case errors.Is(err, git.ErrNotOnTrunk):
		return &CLIError{
			Err:        err,
			Message:    "Phases start from the trunk branch; the phase was not started.",
			Details:    err.Error(),
			Suggestion: "Check out the trunk branch (config key 'trunk'), then run again.",
		}

	case errors.Is(err, gate.ErrNotAwaitingApproval), errors.Is(err, gate.ErrPhaseReleased):
		return &CLIError{
			Err:        err,
			Message:    "The phase is not in the state this command needs.",
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Check 'phaseflow status %s'.", feature),
		}

	case errors.Is(err, approval.ErrNoSecret), errors.Is(err, approval.ErrSecretTooShort):
		return &CLIError{
			Err:        err,
			Message:    "Approval tokens are not configured.",
			Details:    err.Error(),
			Suggestion: "Set PHASEFLOW_APPROVAL_SECRET (at least 32 bytes) or use an SSH key with --key or --agent.",
		}

	case IsApprovalRejected(err):
		return &CLIError{
			Err:        err,
			Message:    "The approval was rejected; the phase is still awaiting approval.",
			Details:    err.Error(),
			Suggestion: fmt.Sprintf("Issue a fresh token with 'phaseflow approve --issue %s <phase>' or sign with an allowed SSH key.", feature),
		}

	case errors.Is(err, artifact.ErrFeatureNotFound):
		return &CLIError{
			Err:        err,
			Message:    fmt.Sprintf("Feature %s does not exist.", feature),
			Suggestion: "Run 'phaseflow status' to list features.",
		}

	case errors.Is(err, pr.ErrUnknownProvider):
		return &CLIError{
			Err:        err,
			Message:    "The review platform could not be determined from the remote.",
			Details:    err.Error(),
			Suggestion: "Set 'review.platform' to github, gitlab or none.",
		}
	}

	if IsAuthError(err) {
		return WrapAuthError(err)
	}
	if IsConnectionError(err) {
		return WrapConnectionError(err, "")
	}
	return err
}

func gateSuggestion(feature string, e *gate.GateError) string {
	switch {
	case errors.Is(e.Err, gate.ErrCIFailed):
		return fmt.Sprintf("Fix the CI failure; 'phaseflow run %s' pushes the fix and reopens review.", feature)
	case errors.Is(e.Err, gate.ErrCheckFailed):
		return fmt.Sprintf("Fix what the check reported, then 'phaseflow run %s'.", feature)
	case errors.Is(e.Err, git.ErrPushFailed):
		return fmt.Sprintf("Check remote access and that the branch can be pushed, then 'phaseflow run %s'.", feature)
	case errors.Is(e.Err, git.ErrMergeConflict):
		return "Resolve the conflict with the trunk branch, then run again."
	}
	return fmt.Sprintf("Resolve the error, then 'phaseflow run %s' resumes from %s.", feature, e.State)
}

// WrapAuthError wraps review platform authentication failures.
func WrapAuthError(err error) error {
	if err == nil {
		return nil
	}
	if !IsAuthError(err) {
		return err
	}
	return &CLIError{
		Err:        fmt.Errorf("%w: %w", ErrNotAuthenticated, err),
		Message:    "The review platform rejected the credentials.",
		Details:    err.Error(),
		Suggestion: "Check github.token / gitlab.token or the GITHUB_TOKEN / GITLAB_TOKEN environment variables.",
	}
}

// WrapConnectionError wraps connection-related errors with helpful
// guidance. target names the service, e.g. a NATS URL.
func WrapConnectionError(err error, target string) error {
	if err == nil {
		return nil
	}
	if !IsConnectionError(err) {
		return err
	}
	where := "a remote service"
	if target != "" {
		where = target
	}

	errStr := strings.ToLower(err.Error())
	cliErr := &CLIError{Err: fmt.Errorf("%w: %w", ErrConnectionFailed, err), Details: err.Error()}
	switch {
	case strings.Contains(errStr, "certificate") || strings.Contains(errStr, "tls") || strings.Contains(errStr, "x509"):
		cliErr.Message = fmt.Sprintf("TLS/certificate error connecting to %s.", where)
		cliErr.Suggestion = "Check that the server certificate is valid."
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		cliErr.Message = fmt.Sprintf("Connection to %s timed out.", where)
		cliErr.Suggestion = "The service may be overloaded or unreachable.\nTry again in a moment."
	default:
		cliErr.Message = fmt.Sprintf("Cannot connect to %s.", where)
		cliErr.Suggestion = "Check that:\n  - The service is running\n  - The URL is correct\n  - Your network connection is working"
	}
	return cliErr
}

// NewNotInGitRepoError creates an error for commands that require a git
// repository.
func NewNotInGitRepoError() error {
	return &CLIError{
		Err:        ErrNotInGitRepo,
		Message:    "phaseflow must be run from within a git repository.",
		Suggestion: "Change to the project directory or pass --root.",
	}
}

// ExitCode maps an error to the process exit code. Reaching
// AwaitingApproval is not an error and exits 0.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, taskgraph.ErrStructural), errors.Is(err, taskgraph.ErrDependency):
		return ExitBuild
	case errors.Is(err, drift.ErrCriticalHalt):
		return ExitDrift
	case errors.Is(err, scheduler.ErrTaskFailed), errors.Is(err, scheduler.ErrPhaseStalled):
		return ExitTask
	case IsGateError(err):
		return ExitGate
	case IsApprovalRejected(err):
		return ExitApproval
	}
	return ExitFailure
}
