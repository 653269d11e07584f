package store

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    feature TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'running',
    phase INTEGER NOT NULL DEFAULT 0,
    started_at TEXT NOT NULL,
    finished_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_feature ON runs(feature, started_at);

CREATE TABLE IF NOT EXISTS tasks (
    feature TEXT NOT NULL,
    task_id TEXT NOT NULL,
    phase INTEGER NOT NULL,
    status TEXT NOT NULL,
    skip_reason TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (feature, task_id)
);

CREATE TABLE IF NOT EXISTS task_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL DEFAULT '',
    feature TEXT NOT NULL,
    task_id TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_events_task ON task_events(feature, task_id);

CREATE TABLE IF NOT EXISTS gates (
    feature TEXT NOT NULL,
    phase INTEGER NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    branch TEXT NOT NULL DEFAULT '',
    review_id INTEGER NOT NULL DEFAULT 0,
    commits TEXT NOT NULL DEFAULT '[]',
    notified INTEGER NOT NULL DEFAULT 0,
    empty INTEGER NOT NULL DEFAULT 0,
    approver TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (feature, phase)
);

CREATE TABLE IF NOT EXISTS drift_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feature TEXT NOT NULL,
    score INTEGER NOT NULL,
    category TEXT NOT NULL,
    report TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drift_reports_feature ON drift_reports(feature, id);
`

// columnUpgrades add columns to databases created by earlier versions.
// "duplicate column" errors mean the column is already there.
var columnUpgrades = []string{
	`ALTER TABLE gates ADD COLUMN empty INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE gates ADD COLUMN outcome TEXT NOT NULL DEFAULT ''`,
}
