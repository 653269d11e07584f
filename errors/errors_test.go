package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/randalmurphal/phaseflow/approval"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/scheduler"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

func TestCLIError(t *testing.T) {
	err := &CLIError{
		Err:        ErrNotInGitRepo,
		Message:    "Test message",
		Suggestion: "Test suggestion",
		Details:    "Test details",
	}

	want := "Test message\nTest details\n\nTest suggestion"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrNotInGitRepo) {
		t.Error("expected error to unwrap to ErrNotInGitRepo")
	}

	minimal := &CLIError{Err: ErrConnectionFailed, Message: "Connection failed"}
	if got := minimal.Error(); got != "Connection failed" {
		t.Errorf("Error() = %q, want %q", got, "Connection failed")
	}
}

func TestDescribe(t *testing.T) {
	critical := &drift.Report{Score: 9, Category: drift.CategoryCritical}

	tests := []struct {
		name           string
		err            error
		wantMessage    string
		wantSuggestion string
		wantExit       int
	}{
		{
			name:           "structural",
			err:            &taskgraph.StructuralError{Source: "tasks.v2.md", Line: 14, Msg: "task outside a phase"},
			wantMessage:    "malformed",
			wantSuggestion: "Fix tasks.v2.md line 14",
			wantExit:       ExitBuild,
		},
		{
			name:           "dependency cycle",
			err:            fmt.Errorf("build: %w", &taskgraph.DependencyError{Cycle: []string{"T001", "T002", "T001"}}),
			wantMessage:    "cannot be resolved",
			wantSuggestion: "phaseflow build 003-add-caching",
			wantExit:       ExitBuild,
		},
		{
			name:           "critical drift",
			err:            critical.Halt(),
			wantMessage:    "score 9",
			wantSuggestion: "phaseflow build --drift 003-add-caching",
			wantExit:       ExitDrift,
		},
		{
			name:           "task failure",
			err:            &scheduler.TaskExecutionError{TaskID: "T004", Phase: 2, Summary: "tests failed"},
			wantMessage:    "Task T004 failed; phase 2 is halted.",
			wantSuggestion: "phaseflow reset 003-add-caching T004",
			wantExit:       ExitTask,
		},
		{
			name:           "CI failure",
			err:            &gate.GateError{Phase: 1, Op: "ci", From: gate.AwaitingCI, State: gate.InProgress, Err: gate.ErrCIFailed},
			wantMessage:    "the gate is in_progress",
			wantSuggestion: "Fix the CI failure",
			wantExit:       ExitGate,
		},
		{
			name:           "push failure",
			err:            &gate.GateError{Phase: 1, Op: "push", From: gate.Pushing, State: gate.InProgress, Err: git.ErrPushFailed},
			wantSuggestion: "remote access",
			wantExit:       ExitGate,
		},
		{
			name:           "dirty tree",
			err:            fmt.Errorf("begin phase 1: %w", git.ErrGitDirty),
			wantMessage:    "uncommitted changes",
			wantSuggestion: "Commit or stash",
			wantExit:       ExitFailure,
		},
		{
			name:           "expired approval",
			err:            fmt.Errorf("verify: %w", approval.ErrTokenExpired),
			wantMessage:    "still awaiting approval",
			wantSuggestion: "approve --issue 003-add-caching",
			wantExit:       ExitApproval,
		},
		{
			name:           "no secret",
			err:            approval.ErrNoSecret,
			wantSuggestion: "PHASEFLOW_APPROVAL_SECRET",
			wantExit:       ExitFailure,
		},
		{
			name:           "connection",
			err:            errors.New("nats: dial tcp 127.0.0.1:4222: connect: connection refused"),
			wantMessage:    "Cannot connect",
			wantExit:       ExitFailure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe("003-add-caching", tt.err)
			var cliErr *CLIError
			if !errors.As(got, &cliErr) {
				t.Fatalf("Describe() = %T, want *CLIError", got)
			}
			if !strings.Contains(cliErr.Message, tt.wantMessage) {
				t.Errorf("Message = %q, want it to contain %q", cliErr.Message, tt.wantMessage)
			}
			if !strings.Contains(cliErr.Suggestion, tt.wantSuggestion) {
				t.Errorf("Suggestion = %q, want it to contain %q", cliErr.Suggestion, tt.wantSuggestion)
			}
			if !errors.Is(got, tt.err) {
				t.Error("described error no longer wraps the original")
			}
			if code := ExitCode(got); code != tt.wantExit {
				t.Errorf("ExitCode() = %d, want %d", code, tt.wantExit)
			}
		})
	}
}

func TestDescribe_PassThrough(t *testing.T) {
	if Describe("", nil) != nil {
		t.Error("Describe(nil) != nil")
	}

	plain := errors.New("something else")
	if got := Describe("", plain); got != plain {
		t.Errorf("Describe() = %v, want the original error", got)
	}

	already := &CLIError{Message: "done"}
	if got := Describe("", already); got != already {
		t.Error("Describe() rewrapped a CLIError")
	}

	got := Describe("", &scheduler.TaskExecutionError{TaskID: "T001", Phase: 1})
	if !strings.Contains(got.Error(), "phaseflow reset <feature> T001") {
		t.Errorf("missing feature placeholder: %q", got)
	}
}

func TestExitCode(t *testing.T) {
	if code := ExitCode(nil); code != ExitOK {
		t.Errorf("ExitCode(nil) = %d, want %d", code, ExitOK)
	}
	if code := ExitCode(scheduler.ErrPhaseStalled); code != ExitTask {
		t.Errorf("ExitCode(stalled) = %d, want %d", code, ExitTask)
	}
	if code := ExitCode(errors.New("boom")); code != ExitFailure {
		t.Errorf("ExitCode(other) = %d, want %d", code, ExitFailure)
	}
}

func TestWrapAuthError(t *testing.T) {
	if WrapAuthError(nil) != nil {
		t.Error("WrapAuthError(nil) != nil")
	}

	err := WrapAuthError(errors.New("GET https://api.github.com/repos/o/r/pulls: 401 Bad credentials []"))
	var cliErr *CLIError
	if !errors.As(err, &cliErr) {
		t.Fatalf("WrapAuthError() = %T, want *CLIError", err)
	}
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Error("expected ErrNotAuthenticated")
	}
	if !strings.Contains(cliErr.Suggestion, "GITHUB_TOKEN") {
		t.Errorf("Suggestion = %q", cliErr.Suggestion)
	}

	other := errors.New("not found")
	if got := WrapAuthError(other); got != other {
		t.Errorf("WrapAuthError(non-auth) = %v, want unchanged", got)
	}
}

func TestWrapConnectionError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{"refused", errors.New("dial tcp 127.0.0.1:4222: connect: connection refused"), "Cannot connect to nats://localhost:4222"},
		{"tls", errors.New("x509: certificate signed by unknown authority"), "TLS/certificate"},
		{"timeout", errors.New("dial tcp 10.0.0.1:443: i/o timeout"), "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapConnectionError(tt.err, "nats://localhost:4222")
			var cliErr *CLIError
			if !errors.As(err, &cliErr) {
				t.Fatalf("WrapConnectionError() = %T, want *CLIError", err)
			}
			if !strings.Contains(cliErr.Message, tt.wantMessage) {
				t.Errorf("Message = %q, want it to contain %q", cliErr.Message, tt.wantMessage)
			}
			if !errors.Is(err, ErrConnectionFailed) || !errors.Is(err, tt.err) {
				t.Error("wrapped error lost its chain")
			}
		})
	}

	if WrapConnectionError(nil, "x") != nil {
		t.Error("WrapConnectionError(nil) != nil")
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		fn   func(error) bool
		err  error
		want bool
	}{
		{"build structural", IsBuildError, &taskgraph.StructuralError{Msg: "x"}, true},
		{"build other", IsBuildError, errors.New("x"), false},
		{"drift halt", IsDriftHalt, &drift.CriticalHalt{Report: &drift.Report{}}, true},
		{"task failure", IsTaskFailure, fmt.Errorf("run: %w", &scheduler.TaskExecutionError{TaskID: "T001"}), true},
		{"gate error", IsGateError, &gate.GateError{Err: gate.ErrCIFailed}, true},
		{"gate sentinel alone", IsGateError, gate.ErrCIFailed, false},
		{"approval unknown signer", IsApprovalRejected, approval.ErrUnknownSigner, true},
		{"approval wrong feature", IsApprovalRejected, gate.ErrWrongFeature, true},
		{"auth", IsAuthError, errors.New("401 Unauthorized"), true},
		{"auth nil", IsAuthError, nil, false},
		{"connection", IsConnectionError, errors.New("lookup github.example: no such host"), true},
		{"connection no", IsConnectionError, errors.New("bad request"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
