package gate

import (
	"sync"
	"time"
)

// State is the release gate state of one phase.
type State string

const (
	NotStarted       State = "not_started"
	Syncing          State = "syncing"
	InProgress       State = "in_progress"
	Pushing          State = "pushing"
	AwaitingReview   State = "awaiting_review"
	AwaitingCI       State = "awaiting_ci"
	AwaitingApproval State = "awaiting_approval"
	Closed           State = "closed"
)

// Outcome records how a phase reached Closed.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"       // released, reviewed and approved
	OutcomeEmpty    Outcome = "approved_empty" // ran without commits, approved explicitly
	OutcomeNoWork   Outcome = "no_work"        // no task ran under the gate
)

// transitions lists the legal moves. Backward edges are failure
// rollbacks to the prior stable state. A phase that ran without commits
// skips release and goes straight to AwaitingApproval.
var transitions = map[State][]State{
	NotStarted:       {Syncing, Closed},
	Syncing:          {InProgress, NotStarted},
	InProgress:       {Pushing, AwaitingApproval},
	Pushing:          {AwaitingReview, InProgress},
	AwaitingReview:   {AwaitingCI, InProgress},
	AwaitingCI:       {AwaitingApproval, InProgress},
	AwaitingApproval: {Closed},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Stable reports whether a phase may rest in s between runs.
func (s State) Stable() bool {
	switch s {
	case NotStarted, InProgress, AwaitingApproval, Closed:
		return true
	}
	return false
}

// PhaseGate is the persisted gate record of one phase.
type PhaseGate struct {
	Phase     int       `json:"phase"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Branch    string    `json:"branch,omitempty"`
	ReviewID  int       `json:"review_id,omitempty"`
	Commits   []string  `json:"commits,omitempty"`
	Notified  bool      `json:"notified,omitempty"`
	Empty     bool      `json:"empty,omitempty"` // held for approval with no commits
	Approver  string    `json:"approver,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists gate records. LoadGate returns nil, nil for a phase with
// no record.
type Store interface {
	LoadGate(feature string, phase int) (*PhaseGate, error)
	SaveGate(feature string, g *PhaseGate) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	gates map[string]map[int]PhaseGate
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{gates: make(map[string]map[int]PhaseGate)}
}

// LoadGate implements Store.
func (m *MemoryStore) LoadGate(feature string, phase int) (*PhaseGate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gates[feature][phase]
	if !ok {
		return nil, nil
	}
	g.Commits = append([]string(nil), g.Commits...)
	return &g, nil
}

// SaveGate implements Store.
func (m *MemoryStore) SaveGate(feature string, g *PhaseGate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gates[feature] == nil {
		m.gates[feature] = make(map[int]PhaseGate)
	}
	cp := *g
	cp.Commits = append([]string(nil), g.Commits...)
	m.gates[feature][g.Phase] = cp
	return nil
}
