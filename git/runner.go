package git

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRunner executes external commands on behalf of a Context.
type CommandRunner interface {
	// Run executes name with args in dir and returns stdout without
	// trailing whitespace. Leading whitespace is significant (git status
	// columns) and is kept. On failure the returned error includes stderr.
	Run(dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct {
	// Env is appended to the inherited environment when non-empty.
	Env []string
}

// NewExecRunner creates a runner that executes real commands.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements CommandRunner.
func (r *ExecRunner) Run(dir, name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimRight(stdout.String(), " \t\r\n")
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = out
		}
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
	}
	return out, nil
}

// RunGit runs a git command in dir using the default exec runner.
func RunGit(dir string, args ...string) (string, error) {
	return NewExecRunner().Run(dir, "git", args...)
}

// Call records a single invocation made against a mock runner.
type Call struct {
	Dir  string
	Name string
	Args []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

type mockResult struct {
	output string
	err    error
}

// SequentialMockRunner returns queued results in order, one per call.
// Calls past the end of the queue return empty output and no error.
type SequentialMockRunner struct {
	mu      sync.Mutex
	results []mockResult
	calls   []Call
}

// NewSequentialMockRunner creates an empty mock runner.
func NewSequentialMockRunner() *SequentialMockRunner {
	return &SequentialMockRunner{}
}

// AddOutput queues a result for the next call.
func (m *SequentialMockRunner) AddOutput(output string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, mockResult{output: output, err: err})
}

// AddOutputError queues a failing result. When err is nil an error
// carrying stderr is synthesized.
func (m *SequentialMockRunner) AddOutputError(output, stderr string, err error) {
	if err == nil {
		err = errors.New(stderr)
	}
	m.AddOutput(output, err)
}

// Run implements CommandRunner.
func (m *SequentialMockRunner) Run(dir, name string, args ...string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, Call{Dir: dir, Name: name, Args: append([]string(nil), args...)})
	idx := len(m.calls) - 1
	if idx >= len(m.results) {
		return "", nil
	}
	r := m.results[idx]
	return r.output, r.err
}

// Calls returns a copy of the recorded calls.
func (m *SequentialMockRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
