package taskgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/randalmurphal/phaseflow/drift"
)

// RebuildSummary records what an incremental rebuild did to each task.
type RebuildSummary struct {
	Preserved   []string          // Done tasks kept verbatim
	Kept        []string          // unaffected open tasks keeping their ids
	Regenerated map[string]string // old id -> new id for tasks touching drifted paths
	Added       []string          // tasks new in the fresh list
	Skipped     []string          // obsolete tasks marked Skipped
}

// Rebuild merges a regenerated task list into a previously built graph.
//
// Done tasks keep their ids, status and phase. Open tasks whose claims
// intersect a path affected by the drift report are regenerated under new
// ids numbered after the highest existing id; the old entries become
// Skipped. Open tasks missing from the fresh list become Skipped. Nothing
// is deleted. Tasks are matched across lists by phase name and
// description, preferring the candidate with the same id. Skipped lines in
// the fresh list are history and never match; a checked line only matches
// a task that is already Done, so re-rebuilding a rendered graph changes
// nothing.
//
// report may be nil, in which case no task counts as affected.
func Rebuild(prev *Graph, fresh *TaskList, report *drift.Report) (*Graph, *RebuildSummary, error) {
	if len(fresh.Phases) == 0 {
		return nil, nil, &StructuralError{Source: "rebuild", Msg: "regenerated task list has no phases"}
	}

	var affected []string
	if report != nil {
		affected = report.AffectedPaths()
	}

	old := prev.Clone()
	summary := &RebuildSummary{Regenerated: make(map[string]string)}
	nextID := old.MaxID()
	allocate := func() string {
		nextID++
		return FormatID(nextID)
	}

	// Index open and done tasks of the old graph by match key.
	byKey := make(map[string][]*Task)
	for _, t := range old.Tasks() {
		if t.Status == StatusSkipped {
			continue
		}
		k := matchKey(old.Phases[t.Phase-1].Name, t.Description)
		byKey[k] = append(byKey[k], t)
	}

	// take removes and returns the best candidate for key k: the one with
	// id if present, otherwise the first in list order.
	take := func(k, id string, doneOnly bool) *Task {
		cands := byKey[k]
		pick := -1
		for i, c := range cands {
			if doneOnly && c.Status != StatusDone {
				continue
			}
			if c.ID == id {
				pick = i
				break
			}
			if pick < 0 {
				pick = i
			}
		}
		if pick < 0 {
			return nil
		}
		match := cands[pick]
		byKey[k] = append(cands[:pick:pick], cands[pick+1:]...)
		return match
	}

	freshToNew := make(map[string]string)
	phases := make([]*Phase, len(fresh.Phases))
	placed := make(map[string]bool)

	for i, fp := range fresh.Phases {
		np := &Phase{Index: i + 1, Name: fp.Name, Line: fp.Line}
		phases[i] = np

		for _, ft := range fp.Tasks {
			if ft.Status == StatusSkipped {
				continue
			}
			k := matchKey(fp.Name, ft.Description)
			var match *Task
			if ft.Status == StatusDone {
				match = take(k, ft.ID, true)
			}
			if match == nil {
				match = take(k, ft.ID, false)
			}

			switch {
			case match != nil && match.Status == StatusDone:
				match.Phase = np.Index
				np.Tasks = append(np.Tasks, match)
				placed[match.ID] = true
				freshToNew[ft.ID] = match.ID
				summary.Preserved = append(summary.Preserved, match.ID)

			case match != nil && !touches(match, affected):
				kept := ft.Clone()
				kept.ID = match.ID
				kept.Phase = np.Index
				kept.Status = match.Status
				if kept.Status == StatusReady || kept.Status == StatusRunning {
					kept.Status = StatusPending
				}
				np.Tasks = append(np.Tasks, kept)
				placed[match.ID] = true
				freshToNew[ft.ID] = match.ID
				summary.Kept = append(summary.Kept, match.ID)

			default:
				nt := ft.Clone()
				nt.ID = allocate()
				nt.Phase = np.Index
				nt.Status = StatusPending
				nt.SkipReason = ""
				np.Tasks = append(np.Tasks, nt)
				freshToNew[ft.ID] = nt.ID
				if match != nil {
					summary.Regenerated[match.ID] = nt.ID
				} else {
					summary.Added = append(summary.Added, nt.ID)
				}
			}
		}
	}

	// Everything from the old graph that was not carried over stays as
	// history at the head of its phase: Done tasks verbatim, open tasks
	// as Skipped.
	history := make(map[int][]*Task)
	for _, t := range old.Tasks() {
		if placed[t.ID] {
			continue
		}
		switch t.Status {
		case StatusSkipped, StatusDone:
		case StatusFailed:
			return nil, nil, fmt.Errorf("%w: %s", ErrUnresolvedFailure, t.ID)
		default:
			if newID, ok := summary.Regenerated[t.ID]; ok {
				t.SkipReason = "regenerated as " + newID + " after drift"
			} else {
				t.SkipReason = "obsolete after re-plan"
				summary.Skipped = append(summary.Skipped, t.ID)
			}
			t.Status = StatusSkipped
			t.Deps = nil
		}

		idx := t.Phase
		if idx > len(phases) {
			idx = len(phases)
		}
		if idx < 1 {
			idx = 1
		}
		t.Phase = idx
		history[idx] = append(history[idx], t)
	}
	for idx, tasks := range history {
		p := phases[idx-1]
		p.Tasks = append(tasks, p.Tasks...)
	}

	// Remap explicit references from fresh ids to assigned ids.
	for _, p := range phases {
		for _, t := range p.Tasks {
			if t.Status == StatusDone || t.Status == StatusSkipped {
				continue
			}
			for i, ref := range t.Explicit {
				if id, ok := freshToNew[ref]; ok {
					t.Explicit[i] = id
				}
			}
		}
	}

	g := newGraph(fresh.Title, phases)
	if err := resolve(g); err != nil {
		return nil, nil, err
	}

	sort.Strings(summary.Skipped)
	return g, summary, nil
}

func touches(t *Task, affected []string) bool {
	for _, claim := range t.Paths {
		for _, a := range affected {
			if ClaimsOverlap(claim, a) {
				return true
			}
		}
	}
	return false
}

func matchKey(phase, desc string) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return norm(phase) + "\x00" + norm(desc)
}
