package taskgraph

import (
	"container/heap"
	"fmt"
	"sort"
)

// Build resolves dependencies for a parsed task list and validates the
// result. The list is consumed: its phases and tasks become the graph.
//
// Implicit edges:
//   - every task depends on the mandatory tasks of the nearest earlier
//     phase that has any
//   - a non-parallel task depends on the task before it in its phase,
//     unless it declares explicit dependencies
func Build(list *TaskList) (*Graph, error) {
	g := newGraph(list.Title, list.Phases)
	if err := resolve(g); err != nil {
		return nil, err
	}
	return g, nil
}

// resolve recomputes Deps for every non-terminal task from phase order,
// sequence and explicit declarations, then checks the graph is acyclic.
// Done and Skipped tasks keep their recorded deps.
func resolve(g *Graph) error {
	phaseOf := make(map[string]int, len(g.tasks))
	for _, p := range g.Phases {
		for _, t := range p.Tasks {
			phaseOf[t.ID] = p.Index
		}
	}

	var carried []string
	for _, p := range g.Phases {
		var prev *Task
		for _, t := range p.Tasks {
			if t.Status == StatusSkipped {
				continue
			}
			if t.Status == StatusDone {
				prev = t
				continue
			}

			deps := append([]string(nil), carried...)
			switch {
			case len(t.Explicit) > 0:
				for _, ref := range t.Explicit {
					refPhase, ok := phaseOf[ref]
					if !ok {
						return &DependencyError{Task: t.ID, Ref: ref, Msg: "depends on unknown task"}
					}
					if refPhase > p.Index {
						return &DependencyError{Task: t.ID, Ref: ref, Msg: "depends on later-phase task"}
					}
					if ref == t.ID {
						return &DependencyError{Task: t.ID, Cycle: []string{t.ID, t.ID}}
					}
					if dep := g.tasks[ref]; dep.Status == StatusSkipped {
						return &DependencyError{Task: t.ID, Ref: ref, Msg: "depends on skipped task"}
					}
					deps = append(deps, ref)
				}
			case !t.Parallel && prev != nil:
				deps = append(deps, prev.ID)
			}
			t.Deps = dedupe(deps)
			prev = t
		}

		if mandatory := p.Mandatory(); len(mandatory) > 0 {
			carried = carried[:0:0]
			for _, t := range mandatory {
				carried = append(carried, t.ID)
			}
		}
	}

	return validateAcyclic(g)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// validateAcyclic runs Kahn's algorithm with a min-heap on document order
// so the reported cycle is the same on every run.
func validateAcyclic(g *Graph) error {
	order := make(map[string]int)
	for i, t := range g.Tasks() {
		order[t.ID] = i
	}

	indegree := make(map[string]int, len(g.tasks))
	children := make(map[string][]string, len(g.tasks))
	for id := range g.tasks {
		indegree[id] = 0
	}
	for id, t := range g.tasks {
		for _, d := range t.Deps {
			indegree[id]++
			children[d] = append(children[d], id)
		}
	}

	h := &orderHeap{order: order}
	for id, deg := range indegree {
		if deg == 0 {
			heap.Push(h, id)
		}
	}

	visited := 0
	for h.Len() > 0 {
		id := heap.Pop(h).(string)
		visited++
		for _, c := range children[id] {
			indegree[c]--
			if indegree[c] == 0 {
				heap.Push(h, c)
			}
		}
	}
	if visited == len(g.tasks) {
		return nil
	}

	var remaining []string
	for id, deg := range indegree {
		if deg > 0 {
			remaining = append(remaining, id)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return order[remaining[i]] < order[remaining[j]] })
	return &DependencyError{Task: remaining[0], Cycle: findCycle(g, remaining[0])}
}

// findCycle walks dependencies from start until a task repeats.
func findCycle(g *Graph, start string) []string {
	var path []string
	index := make(map[string]int)
	var visit func(id string) []string
	visit = func(id string) []string {
		if i, ok := index[id]; ok {
			return append(append([]string(nil), path[i:]...), id)
		}
		index[id] = len(path)
		path = append(path, id)
		t := g.tasks[id]
		deps := append([]string(nil), t.Deps...)
		sort.Strings(deps)
		for _, d := range deps {
			if _, ok := g.tasks[d]; !ok {
				continue
			}
			if c := visit(d); c != nil {
				return c
			}
		}
		path = path[:len(path)-1]
		delete(index, id)
		return nil
	}
	if c := visit(start); c != nil {
		return c
	}
	return []string{start}
}

type orderHeap struct {
	ids   []string
	order map[string]int
}

func (h orderHeap) Len() int           { return len(h.ids) }
func (h orderHeap) Less(i, j int) bool { return h.order[h.ids[i]] < h.order[h.ids[j]] }
func (h orderHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *orderHeap) Push(x any)        { h.ids = append(h.ids, x.(string)) }
func (h *orderHeap) Pop() any {
	n := len(h.ids)
	x := h.ids[n-1]
	h.ids = h.ids[:n-1]
	return x
}

// String renders a one-line summary, useful in logs.
func (g *Graph) String() string {
	c := g.Counts()
	return fmt.Sprintf("%d phases, %d tasks (%d done, %d skipped)",
		len(g.Phases), len(g.tasks), c[StatusDone], c[StatusSkipped])
}
