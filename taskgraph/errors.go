package taskgraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStructural matches any *StructuralError.
	ErrStructural = errors.New("structural error")

	// ErrDependency matches any *DependencyError.
	ErrDependency = errors.New("dependency error")

	// ErrInvalidTransition indicates an illegal task status change.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrUnresolvedFailure indicates a rebuild would skip a failed task
	// that has not been reset by an operator.
	ErrUnresolvedFailure = errors.New("failed task must be reset before re-planning")
)

// StructuralError reports a malformed task list. The builder never guesses;
// the artifact must be regenerated.
type StructuralError struct {
	Source string // artifact name or path
	Line   int    // 1-based, 0 when not tied to a line
	Msg    string
}

func (e *StructuralError) Error() string {
	loc := e.Source
	if loc == "" {
		loc = "task list"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	return fmt.Sprintf("structural error at %s: %s", loc, e.Msg)
}

func (e *StructuralError) Unwrap() error { return ErrStructural }

// DependencyError reports a cycle or a reference that cannot be resolved.
type DependencyError struct {
	Task  string   // task holding the bad reference
	Ref   string   // unresolved reference, if any
	Cycle []string // task ids forming a cycle, if any
	Msg   string
}

func (e *DependencyError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Cycle, " -> "))
	}
	if e.Ref != "" {
		return fmt.Sprintf("task %s: %s %s", e.Task, e.Msg, e.Ref)
	}
	return fmt.Sprintf("task %s: %s", e.Task, e.Msg)
}

func (e *DependencyError) Unwrap() error { return ErrDependency }
