// Package scheduler runs a task graph phase by phase.
//
// One coordinating goroutine owns every task status. It promotes Pending
// tasks whose dependencies are Done to Ready, and dispatches Ready tasks in
// document order up to a concurrency bound. Each dispatch routes the task
// to a provider and runs it on a worker goroutine. A Ready task whose
// file-path claims overlap a running task stays Ready until the claim is
// released.
//
// Failure handling:
//   - a failed sequential task halts the phase; running siblings finish
//   - a failed parallel task blocks only its dependents
//   - nothing is retried automatically; Reset moves a Failed task back to
//     Pending
//
// Between phases the scheduler consults the drift guard and hands the
// finished phase to the Gate; it does not start the next phase until the
// gate says so.
//
//	s, err := scheduler.New(scheduler.Config{
//	    Feature: "003-add-caching",
//	    Router:  router,
//	    Gate:    releaseGate,
//	})
//	res, err := s.Run(ctx, graph)
package scheduler
