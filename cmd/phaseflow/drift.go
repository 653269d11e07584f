package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/drift"
)

func newDriftCmd(a *app) *cobra.Command {
	var (
		watch    bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "drift <feature>",
		Short: "Compare the codebase against the feature's baseline survey",
		Long: `Survey the codebase and compare it with the survey taken at build time.

By default a score of 5 raises an alert and 8 is critical: the next phase
is held until 'phaseflow build --drift' re-plans. Thresholds and weights are
set in .phaseflow/policy.yaml.

--watch keeps measuring whenever manifests, top-level directories or HEAD
change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature := args[0]
			return a.withEngine(feature, func(eng *phaseflow.Engine) error {
				if !watch {
					r, err := eng.Drift(cmd.Context(), feature)
					if err != nil {
						return err
					}
					printDrift(a, r)
					return nil
				}
				ctx, stop := interruptible(cmd.Context())
				defer stop()
				fmt.Fprintf(a.out, "%s\n", gray("Watching for drift; Ctrl-C to stop."))
				return eng.Watch(ctx, feature, debounce, func(r *drift.Report) {
					fmt.Fprintf(a.out, "%s ", gray(time.Now().Format(time.TimeOnly)))
					printDrift(a, r)
				})
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep watching for drift")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "quiet period before re-surveying in watch mode")
	return cmd
}

func printDrift(a *app, r *drift.Report) {
	fmt.Fprintln(a.out, driftLabel(r))
	for _, f := range r.Findings {
		fmt.Fprintf(a.out, "  +%d %-13s %s", f.Weight, f.Dimension, f.Description)
		if len(f.Paths) > 0 {
			fmt.Fprintf(a.out, " %s", gray(strings.Join(f.Paths, ", ")))
		}
		fmt.Fprintln(a.out)
	}
}
