package scheduler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTaskFailed matches every TaskExecutionError.
	ErrTaskFailed = errors.New("task failed")

	// ErrUnknownTask is returned by Reset and Skip for ids not in the graph.
	ErrUnknownTask = errors.New("unknown task")

	// ErrPhaseStalled means a phase still has open tasks but none can
	// become ready, for example because they depend on an optional task
	// that never ran.
	ErrPhaseStalled = errors.New("phase stalled")

	// ErrNoRouter is returned by New when no router is configured.
	ErrNoRouter = errors.New("scheduler: router is required")
)

// TaskExecutionError reports a task that finished Failed. It is scoped to
// the phase the task belongs to.
type TaskExecutionError struct {
	TaskID  string
	Phase   int
	Route   string
	Summary string // provider's one-line summary, if any
	Err     error  // invocation or commit error, if any
}

func (e *TaskExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "task %s failed in phase %d", e.TaskID, e.Phase)
	if e.Route != "" {
		fmt.Fprintf(&b, " (route %s)", e.Route)
	}
	switch {
	case e.Err != nil:
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Summary != "":
		b.WriteString(": ")
		b.WriteString(e.Summary)
	}
	return b.String()
}

func (e *TaskExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTaskFailed}
	}
	return []error{ErrTaskFailed, e.Err}
}
