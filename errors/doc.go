// Package errors turns engine errors into operator-facing messages.
//
// Every halt states the machine state and the required action:
//
//	if err := engine.Run(ctx, feature); err != nil {
//	    err = errors.Describe(feature, err)
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(errors.ExitCode(err))
//	}
//
// Describe recognizes the engine taxonomy:
//   - taskgraph.StructuralError, taskgraph.DependencyError: the build aborted
//   - drift.CriticalHalt: execution paused until a re-plan
//   - scheduler.TaskExecutionError: the phase halted on a failed task
//   - gate.GateError: a release gate operation failed and rolled back
//
// ExitCode maps the same taxonomy to distinct process exit codes.
package errors
