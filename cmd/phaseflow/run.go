package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/scheduler"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <feature>",
		Short: "Run the feature's graph until it completes or a phase awaits approval",
		Long: `Run dispatches ready tasks phase by phase, committing each finished task
on the phase branch. At the end of a phase the branch is pushed for review and
the run stops until the phase is approved.

Run resumes from the recorded state: done tasks are not repeated and an
approved phase is not revisited. Interrupting a run lets running tasks finish.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature := args[0]
			ctx, stop := interruptible(cmd.Context())
			defer stop()

			return a.withEngine(feature, func(eng *phaseflow.Engine) error {
				res, err := eng.Run(ctx, feature)
				if res != nil {
					printRun(a, feature, res)
				}
				return err
			})
		},
	}
}

func printRun(a *app, feature string, res *scheduler.Result) {
	if len(res.Done) > 0 {
		fmt.Fprintf(a.out, "%s Done: %s\n", green("✓"), strings.Join(res.Done, " "))
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(a.out, "%s Failed: %s\n", red("✗"), strings.Join(res.Failed, " "))
	}

	switch res.State {
	case scheduler.RunComplete:
		fmt.Fprintf(a.out, "%s All phases complete.\n", green("✓"))
	case scheduler.RunAwaitingApproval:
		fmt.Fprintf(a.out, "%s Phase %d is awaiting approval.\n", yellow("⏸"), res.Phase)
		fmt.Fprintf(a.out, "  Approve with: phaseflow approve %s %d --token <token>\n", feature, res.Phase)
	case scheduler.RunCanceled:
		fmt.Fprintf(a.out, "%s Run interrupted in phase %d; 'phaseflow run %s' resumes it.\n", yellow("⏸"), res.Phase, feature)
	case scheduler.RunHalted, scheduler.RunDriftHalted:
		if len(res.Blocked) > 0 {
			fmt.Fprintf(a.out, "  Blocked in phase %d: %s\n", res.Phase, strings.Join(res.Blocked, " "))
		}
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <feature> <task>",
		Short: "Move a failed task back to pending",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(args[0], func(eng *phaseflow.Engine) error {
				if err := eng.Reset(args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s reset; the next run retries it.\n", green("✓"), args[1])
				return nil
			})
		},
	}
}

func newSkipCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "skip <feature> <task>",
		Short: "Mark a pending task skipped",
		Long: `Mark a pending or ready task skipped so its phase no longer waits for it.
A reason is required and kept with the task.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(args[0], func(eng *phaseflow.Engine) error {
				if err := eng.Skip(args[0], args[1], reason); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s skipped: %s\n", green("✓"), args[1], reason)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "why the task is skipped (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
