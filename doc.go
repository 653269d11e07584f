// Package phaseflow turns a feature's design artifacts into a phased,
// partially parallel execution schedule and drives it to review.
//
// The Engine composes the subpackages around an explicit project.Context:
//
//   - artifact: versioned specification, plan, task-list, survey and
//     retrospective documents per feature
//   - taskgraph: parse task lists into phases and tasks; full and
//     incremental builds
//   - scheduler and provider: phase-by-phase dispatch to capability
//     providers with a claim table keeping conflicting tasks apart
//   - gate, git, pr and approval: the per-phase release gate
//   - drift: codebase surveys compared against the feature's baseline
//   - retro: per-phase retrospectives and promotion into project memory
//   - store: run state in SQLite so runs resume across invocations
//
// A typical session:
//
//	pc, err := project.Open(project.Options{})
//	if err != nil {
//	    return err
//	}
//	eng, err := phaseflow.New(pc, phaseflow.Options{})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if _, err := eng.Build(ctx, "001"); err != nil {
//	    return err
//	}
//	res, err := eng.Run(ctx, "001")
//	// res.State == scheduler.RunAwaitingApproval: the phase waits for
//	// eng.Approve with a verified approval.Event, then Run continues.
//
// The cmd/phaseflow binary is a thin CLI over the Engine.
package phaseflow
