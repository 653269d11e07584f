package scheduler

import (
	"sort"
	"sync"

	"github.com/randalmurphal/phaseflow/taskgraph"
)

// ClaimTable records the file-path claims held by running tasks. A claim
// is acquired on dispatch and released on completion; a task whose claims
// overlap a held claim is not dispatched.
type ClaimTable struct {
	mu   sync.Mutex
	held map[string][]string // task id -> claims
}

// NewClaimTable creates an empty claim table.
func NewClaimTable() *ClaimTable {
	return &ClaimTable{held: make(map[string][]string)}
}

// TryAcquire takes all of t's claims, or none when any of them overlaps a
// claim held by another task. It returns the conflicting holder on
// failure. Coordination tasks always succeed and hold nothing.
func (c *ClaimTable) TryAcquire(t *taskgraph.Task) (holder string, ok bool) {
	if t.Coordination() {
		return "", true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.sortedHolders() {
		if id == t.ID {
			continue
		}
		for _, held := range c.held[id] {
			for _, p := range t.Paths {
				if taskgraph.ClaimsOverlap(held, p) {
					return id, false
				}
			}
		}
	}
	c.held[t.ID] = append([]string(nil), t.Paths...)
	return "", true
}

// Release drops every claim held by the task. Releasing a task that holds
// nothing is a no-op.
func (c *ClaimTable) Release(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, taskID)
}

// Holder returns the task holding a claim that overlaps path.
func (c *ClaimTable) Holder(path string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.sortedHolders() {
		for _, held := range c.held[id] {
			if taskgraph.ClaimsOverlap(held, path) {
				return id, true
			}
		}
	}
	return "", false
}

// Len returns the number of tasks holding claims.
func (c *ClaimTable) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}

// sortedHolders must be called with mu held.
func (c *ClaimTable) sortedHolders() []string {
	ids := make([]string, 0, len(c.held))
	for id := range c.held {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
