package provider

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/randalmurphal/phaseflow/retro"
	"github.com/randalmurphal/phaseflow/task"
)

// ErrNoProvider indicates no route matched and no fallback was registered.
var ErrNoProvider = errors.New("no capability provider for task")

// Status is the result a provider reports for one task.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// ChangeOp describes what happened to a file.
type ChangeOp string

const (
	OpAdded    ChangeOp = "added"
	OpModified ChangeOp = "modified"
	OpDeleted  ChangeOp = "deleted"
)

// FileChange is one file a provider touched.
type FileChange struct {
	Path string
	Op   ChangeOp
}

// Descriptor is everything a provider needs to carry out one task.
type Descriptor struct {
	Feature      string
	TaskID       string
	Phase        int
	PhaseName    string
	Description  string
	Paths        []string
	Story        string
	Parallel     bool
	Kind         task.Type
	Technologies []string          // languages and frameworks from the latest survey
	Context      map[string]string // spec and plan sections by name
	WorkDir      string
}

// Extensions returns the distinct lowercase extensions of the claimed paths.
func (d Descriptor) Extensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range d.Paths {
		ext := strings.ToLower(path.Ext(p))
		if ext != "" && !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	return out
}

// Outcome is what a provider reports back.
type Outcome struct {
	Status  Status
	Changes []FileChange
	Notes   retro.Fragment
	Summary string
}

// ChangedPaths returns the paths of all changes.
func (o Outcome) ChangedPaths() []string {
	out := make([]string, len(o.Changes))
	for i, c := range o.Changes {
		out[i] = c.Path
	}
	return out
}

// Provider carries out tasks. Invoke returns an error only when the
// provider could not run at all; a task that ran and failed reports
// StatusFailed.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, d Descriptor) (Outcome, error)
}
