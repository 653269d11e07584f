package taskgraph

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsTerminal reports whether no further automatic transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusSkipped
}

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusReady, StatusSkipped},
	StatusReady:   {StatusRunning, StatusSkipped},
	StatusRunning: {StatusDone, StatusFailed},
	StatusFailed:  {StatusPending},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Failed -> Pending is reserved for the operator reset.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves t to the given status or returns ErrInvalidTransition.
func Transition(t *Task, to Status) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: task %s %s -> %s", ErrInvalidTransition, t.ID, t.Status, to)
	}
	t.Status = to
	return nil
}

// Task is the smallest schedulable unit.
type Task struct {
	ID          string
	Phase       int // 1-based position of the owning phase
	Description string
	Paths       []string // file-path claims
	Parallel    bool
	Story       string
	Optional    bool
	Explicit    []string // dependencies declared in the task list
	Deps        []string // resolved dependencies
	Status      Status
	SkipReason  string
	Line        int
}

// Mandatory reports whether the next phase waits on this task.
func (t *Task) Mandatory() bool {
	return !t.Optional
}

// Coordination reports whether the task claims no files. Coordination
// tasks never take part in conflict serialization.
func (t *Task) Coordination() bool {
	return len(t.Paths) == 0
}

// Number returns the numeric part of the task id (T012 -> 12).
func (t *Task) Number() int {
	return idNumber(t.ID)
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Paths = append([]string(nil), t.Paths...)
	c.Explicit = append([]string(nil), t.Explicit...)
	c.Deps = append([]string(nil), t.Deps...)
	return &c
}

// Phase is an ordered stage of a task list.
type Phase struct {
	Index int // 1-based document position
	Name  string
	Tasks []*Task
	Line  int
}

// Mandatory returns the mandatory, non-skipped tasks of the phase.
func (p *Phase) Mandatory() []*Task {
	var out []*Task
	for _, t := range p.Tasks {
		if t.Mandatory() && t.Status != StatusSkipped {
			out = append(out, t)
		}
	}
	return out
}

// Complete reports whether every mandatory task is Done.
func (p *Phase) Complete() bool {
	for _, t := range p.Mandatory() {
		if t.Status != StatusDone {
			return false
		}
	}
	return true
}

// Graph is a built task graph: phases in order, tasks with resolved deps.
type Graph struct {
	Title  string
	Phases []*Phase
	tasks  map[string]*Task
}

func newGraph(title string, phases []*Phase) *Graph {
	g := &Graph{Title: title, Phases: phases, tasks: make(map[string]*Task)}
	for _, p := range phases {
		for _, t := range p.Tasks {
			g.tasks[t.ID] = t
		}
	}
	return g
}

// Task returns the task with the given id.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in document order.
func (g *Graph) Tasks() []*Task {
	var out []*Task
	for _, p := range g.Phases {
		out = append(out, p.Tasks...)
	}
	return out
}

// Phase returns the phase at 1-based index i.
func (g *Graph) Phase(i int) (*Phase, bool) {
	if i < 1 || i > len(g.Phases) {
		return nil, false
	}
	return g.Phases[i-1], true
}

// Dependents returns ids of tasks that depend directly on id, sorted.
func (g *Graph) Dependents(id string) []string {
	var out []string
	for _, t := range g.Tasks() {
		for _, d := range t.Deps {
			if d == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// DepsDone reports whether every dependency of t is Done.
func (g *Graph) DepsDone(t *Task) bool {
	for _, d := range t.Deps {
		dep, ok := g.tasks[d]
		if !ok || dep.Status != StatusDone {
			return false
		}
	}
	return true
}

// MaxID returns the highest task number in the graph.
func (g *Graph) MaxID() int {
	max := 0
	for id := range g.tasks {
		if n := idNumber(id); n > max {
			max = n
		}
	}
	return max
}

// Counts tallies tasks by status.
func (g *Graph) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, t := range g.tasks {
		counts[t.Status]++
	}
	return counts
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	phases := make([]*Phase, len(g.Phases))
	for i, p := range g.Phases {
		cp := &Phase{Index: p.Index, Name: p.Name, Line: p.Line}
		for _, t := range p.Tasks {
			cp.Tasks = append(cp.Tasks, t.Clone())
		}
		phases[i] = cp
	}
	return newGraph(g.Title, phases)
}

// ClaimsOverlap reports whether two file-path claims conflict: the same
// path, or one is a directory containing the other.
func ClaimsOverlap(a, b string) bool {
	a, b = cleanClaim(a), cleanClaim(b)
	if a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

// TasksConflict reports whether two tasks hold overlapping claims.
// Coordination tasks never conflict.
func TasksConflict(a, b *Task) bool {
	for _, pa := range a.Paths {
		for _, pb := range b.Paths {
			if ClaimsOverlap(pa, pb) {
				return true
			}
		}
	}
	return false
}

func cleanClaim(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if p == "." {
		return ""
	}
	return p
}

// FormatID renders a task number as T001.
func FormatID(n int) string {
	return fmt.Sprintf("T%03d", n)
}

func idNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "T"))
	if err != nil {
		return 0
	}
	return n
}
