package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

// FileName is the database file inside the .phaseflow directory.
const FileName = "state.db"

// Fixed width so stored stamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store persists run state in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ gate.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	for _, stmt := range columnUpgrades {
		if _, err := db.Exec(stmt); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			db.Close()
			return nil, fmt.Errorf("failed to upgrade schema: %w", err)
		}
	}

	return &Store{db: db, now: time.Now}, nil
}

// OpenInRoot opens <root>/.phaseflow/state.db.
func OpenInRoot(root string) (*Store, error) {
	return Open(filepath.Join(root, ".phaseflow", FileName))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

// Run is one scheduler invocation for a feature.
type Run struct {
	ID         string
	Feature    string
	State      string
	Phase      int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finished reports whether FinishRun has been called.
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// BeginRun records the start of a run and returns it.
func (s *Store) BeginRun(feature string) (*Run, error) {
	run := &Run{ID: uuid.NewString(), Feature: feature, State: "running"}
	started := s.stamp()
	run.StartedAt = parseTime(started)
	_, err := s.db.Exec(
		`INSERT INTO runs (id, feature, state, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, feature, run.State, started,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run: %w", err)
	}
	return run, nil
}

// FinishRun records where a run stopped.
func (s *Store) FinishRun(id, state string, phase int) error {
	res, err := s.db.Exec(
		`UPDATE runs SET state = ?, phase = ?, finished_at = ? WHERE id = ?`,
		state, phase, s.stamp(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// LastRun returns the most recent run of a feature.
func (s *Store) LastRun(feature string) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	err := s.db.QueryRow(
		`SELECT id, feature, state, phase, started_at, finished_at
		 FROM runs WHERE feature = ? ORDER BY rowid DESC LIMIT 1`,
		feature,
	).Scan(&run.ID, &run.Feature, &run.State, &run.Phase, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no runs for %s: %w", feature, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}
	run.StartedAt = parseTime(started)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	return &run, nil
}

// TaskState is the persisted status of one task.
type TaskState struct {
	Phase      int
	Status     taskgraph.Status
	SkipReason string
	UpdatedAt  time.Time
}

// TaskEvent is one recorded status change.
type TaskEvent struct {
	RunID  string
	Status taskgraph.Status
	At     time.Time
}

// Recorder records task status changes for one feature and run. It
// satisfies the scheduler's Recorder interface.
type Recorder struct {
	store   *Store
	feature string
	runID   string
}

// Recorder returns a task recorder bound to a feature and run. runID may
// be empty for changes made outside a run (skip, reset).
func (s *Store) Recorder(feature, runID string) *Recorder {
	return &Recorder{store: s, feature: feature, runID: runID}
}

// RecordTask upserts the task's status and appends a history event.
func (r *Recorder) RecordTask(t *taskgraph.Task) error {
	return r.store.recordTask(r.feature, r.runID, t)
}

func (s *Store) recordTask(feature, runID string, t *taskgraph.Task) error {
	now := s.stamp()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO tasks (feature, task_id, phase, status, skip_reason, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(feature, task_id) DO UPDATE SET
		   phase = excluded.phase,
		   status = excluded.status,
		   skip_reason = excluded.skip_reason,
		   updated_at = excluded.updated_at`,
		feature, t.ID, t.Phase, string(t.Status), t.SkipReason, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record task %s: %w", t.ID, err)
	}
	_, err = tx.Exec(
		`INSERT INTO task_events (run_id, feature, task_id, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, feature, t.ID, string(t.Status), now,
	)
	if err != nil {
		return fmt.Errorf("failed to record task event %s: %w", t.ID, err)
	}
	return tx.Commit()
}

// TaskStates returns the persisted state of every recorded task of a
// feature, keyed by task id.
func (s *Store) TaskStates(feature string) (map[string]TaskState, error) {
	rows, err := s.db.Query(
		`SELECT task_id, phase, status, skip_reason, updated_at FROM tasks WHERE feature = ?`,
		feature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]TaskState)
	for rows.Next() {
		var (
			id, status, updated string
			ts                  TaskState
		)
		if err := rows.Scan(&id, &ts.Phase, &status, &ts.SkipReason, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		ts.Status = taskgraph.Status(status)
		ts.UpdatedAt = parseTime(updated)
		out[id] = ts
	}
	return out, rows.Err()
}

// TaskHistory returns the recorded status changes of a task, oldest first.
func (s *Store) TaskHistory(feature, taskID string) ([]TaskEvent, error) {
	rows, err := s.db.Query(
		`SELECT run_id, status, created_at FROM task_events
		 WHERE feature = ? AND task_id = ? ORDER BY id`,
		feature, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var out []TaskEvent
	for rows.Next() {
		var ev TaskEvent
		var status, at string
		if err := rows.Scan(&ev.RunID, &status, &at); err != nil {
			return nil, fmt.Errorf("failed to scan task event: %w", err)
		}
		ev.Status = taskgraph.Status(status)
		ev.At = parseTime(at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ApplyTaskStates copies persisted statuses onto the tasks of g. A task
// recorded as Running was interrupted and comes back as Failed so that it
// needs an explicit reset. It returns the ids that were downgraded.
func ApplyTaskStates(g *taskgraph.Graph, states map[string]TaskState) []string {
	var interrupted []string
	for _, t := range g.Tasks() {
		st, ok := states[t.ID]
		if !ok {
			continue
		}
		t.Status = st.Status
		t.SkipReason = st.SkipReason
		if t.Status == taskgraph.StatusRunning {
			t.Status = taskgraph.StatusFailed
			interrupted = append(interrupted, t.ID)
		}
	}
	return interrupted
}

// LoadGate implements gate.Store.
func (s *Store) LoadGate(feature string, phase int) (*gate.PhaseGate, error) {
	var (
		g        gate.PhaseGate
		state    string
		commits  string
		notified int
		empty    int
		outcome  string
		updated  string
	)
	err := s.db.QueryRow(
		`SELECT phase, name, state, branch, review_id, commits, notified, empty, approver, outcome, updated_at
		 FROM gates WHERE feature = ? AND phase = ?`,
		feature, phase,
	).Scan(&g.Phase, &g.Name, &state, &g.Branch, &g.ReviewID, &commits, &notified, &empty, &g.Approver, &outcome, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load gate %s/%d: %w", feature, phase, err)
	}
	if err := json.Unmarshal([]byte(commits), &g.Commits); err != nil {
		return nil, fmt.Errorf("failed to decode commits for gate %s/%d: %w", feature, phase, err)
	}
	g.State = gate.State(state)
	g.Notified = notified != 0
	g.Empty = empty != 0
	g.Outcome = gate.Outcome(outcome)
	g.UpdatedAt = parseTime(updated)
	return &g, nil
}

// SaveGate implements gate.Store.
func (s *Store) SaveGate(feature string, g *gate.PhaseGate) error {
	commits, err := json.Marshal(g.Commits)
	if err != nil {
		return fmt.Errorf("failed to encode commits: %w", err)
	}
	if g.Commits == nil {
		commits = []byte("[]")
	}
	updated := g.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	notified, empty := 0, 0
	if g.Notified {
		notified = 1
	}
	if g.Empty {
		empty = 1
	}
	_, err = s.db.Exec(
		`INSERT INTO gates (feature, phase, name, state, branch, review_id, commits, notified, empty, approver, outcome, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(feature, phase) DO UPDATE SET
		   name = excluded.name,
		   state = excluded.state,
		   branch = excluded.branch,
		   review_id = excluded.review_id,
		   commits = excluded.commits,
		   notified = excluded.notified,
		   empty = excluded.empty,
		   approver = excluded.approver,
		   outcome = excluded.outcome,
		   updated_at = excluded.updated_at`,
		feature, g.Phase, g.Name, string(g.State), g.Branch, g.ReviewID, string(commits), notified, empty, g.Approver,
		string(g.Outcome), updated.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save gate %s/%d: %w", feature, g.Phase, err)
	}
	return nil
}

// Gates returns every gate record of a feature ordered by phase.
func (s *Store) Gates(feature string) ([]*gate.PhaseGate, error) {
	rows, err := s.db.Query(`SELECT phase FROM gates WHERE feature = ? ORDER BY phase`, feature)
	if err != nil {
		return nil, fmt.Errorf("failed to query gates: %w", err)
	}
	var phases []int
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan gate: %w", err)
		}
		phases = append(phases, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*gate.PhaseGate, 0, len(phases))
	for _, p := range phases {
		g, err := s.LoadGate(feature, p)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// SaveDriftReport stores a drift report and returns its id.
func (s *Store) SaveDriftReport(feature string, r *drift.Report) (int64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("failed to encode drift report: %w", err)
	}
	res, err := s.db.Exec(
		`INSERT INTO drift_reports (feature, score, category, report, created_at) VALUES (?, ?, ?, ?, ?)`,
		feature, r.Score, string(r.Category), string(data), s.stamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save drift report: %w", err)
	}
	return res.LastInsertId()
}

// LatestDriftReport returns the most recent drift report of a feature.
func (s *Store) LatestDriftReport(feature string) (*drift.Report, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT report FROM drift_reports WHERE feature = ? ORDER BY id DESC LIMIT 1`,
		feature,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no drift report for %s: %w", feature, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load drift report: %w", err)
	}
	var r drift.Report
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("failed to decode drift report: %w", err)
	}
	return &r, nil
}
