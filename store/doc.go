// Package store persists run state in <root>/.phaseflow/state.db so that
// run, approve and reset resume across invocations.
//
// It records runs, task status changes (as a scheduler Recorder), phase
// gate records (as a gate.Store) and drift reports. The database is SQLite
// through the pure Go modernc.org/sqlite driver.
//
//	s, err := store.OpenInRoot(root)
//	run, _ := s.BeginRun(feature)
//	sched, _ := scheduler.New(scheduler.Config{Recorder: s.Recorder(feature, run.ID), ...})
package store
