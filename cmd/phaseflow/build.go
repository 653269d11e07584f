package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

func newBuildCmd(a *app) *cobra.Command {
	var incremental, drifted bool
	cmd := &cobra.Command{
		Use:   "build <feature>",
		Short: "Build the task graph from the feature's task list",
		Long: `Build the task graph from the feature's active task list.

A full build takes task statuses from the list's checkboxes and makes the
current codebase survey the drift baseline.

--incremental merges the latest task-list version into the built graph:
done tasks are kept, open tasks touching drifted paths get new ids and
obsolete tasks are skipped. It uses the last recorded drift report.

--drift is --incremental with a fresh survey. Use it after a critical drift
halt; the re-plan becomes the new baseline and lifts the halt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if incremental && drifted {
				return errors.New("--incremental and --drift are mutually exclusive")
			}
			feature := args[0]
			return a.withEngine(feature, func(eng *phaseflow.Engine) error {
				var (
					res *phaseflow.BuildResult
					err error
				)
				if incremental || drifted {
					res, err = eng.Replan(cmd.Context(), feature, drifted)
				} else {
					res, err = eng.Build(cmd.Context(), feature)
				}
				if err != nil {
					return err
				}
				printBuild(a, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "merge the latest task list into the built graph")
	cmd.Flags().BoolVar(&drifted, "drift", false, "re-survey and re-plan against current drift")
	return cmd
}

func printBuild(a *app, res *phaseflow.BuildResult) {
	g := res.Graph
	counts := g.Counts()
	fmt.Fprintf(a.out, "%s Built %s from task list v%d: %d phases, %d tasks (%d done)\n",
		green("✓"), cyan(res.Feature), res.Version, len(g.Phases), len(g.Tasks()), counts[taskgraph.StatusDone])

	if res.Drift != nil && res.Drift.Score > 0 {
		fmt.Fprintf(a.out, "  Drift: %s\n", res.Drift.Summary())
	}
	if s := res.Summary; s != nil {
		line := func(label string, ids []string) {
			if len(ids) > 0 {
				fmt.Fprintf(a.out, "  %-12s %s\n", label+":", strings.Join(ids, " "))
			}
		}
		line("Preserved", s.Preserved)
		line("Kept", s.Kept)
		line("Added", s.Added)
		line("Skipped", s.Skipped)
		for old, id := range s.Regenerated {
			fmt.Fprintf(a.out, "  %-12s %s -> %s\n", "Regenerated:", old, id)
		}
	}

	for _, p := range g.Phases {
		fmt.Fprintf(a.out, "\n%s\n", yellow(fmt.Sprintf("Phase %d: %s", p.Index, p.Name)))
		for _, t := range p.Tasks {
			deps := ""
			if len(t.Deps) > 0 {
				deps = gray(" after " + strings.Join(t.Deps, ","))
			}
			par := ""
			if t.Parallel {
				par = " [P]"
			}
			fmt.Fprintf(a.out, "  %s %s%s %s%s\n", statusIcon(t.Status), t.ID, par, t.Description, deps)
		}
	}
}
