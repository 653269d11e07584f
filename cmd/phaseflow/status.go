package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/drift"
	"github.com/randalmurphal/phaseflow/gate"
	"github.com/randalmurphal/phaseflow/taskgraph"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status [feature]",
		Short: "Show feature progress, release gates and drift",
		Long: `Without a feature, list all features with their task counts.
With a feature, show each phase's gate state and task statuses, the last
run and the last drift report.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return a.withEngine("", func(eng *phaseflow.Engine) error {
					return listFeatures(a, eng)
				})
			}
			return a.withEngine(args[0], func(eng *phaseflow.Engine) error {
				st, err := eng.Status(args[0])
				if err != nil {
					return err
				}
				printStatus(a, st)
				return nil
			})
		},
	}
}

func listFeatures(a *app, eng *phaseflow.Engine) error {
	features, err := eng.Features()
	if err != nil {
		return err
	}
	if len(features) == 0 {
		fmt.Fprintf(a.out, "%s\n", gray("No features. Create one with 'phaseflow new <name>'."))
		return nil
	}
	for _, f := range features {
		st, err := eng.Status(f.ID)
		if err != nil {
			return err
		}
		if st.Graph == nil {
			fmt.Fprintf(a.out, "  %s  %s\n", cyan(f.ID), gray("not built"))
			continue
		}
		counts := st.Graph.Counts()
		fmt.Fprintf(a.out, "  %s  %d/%d done", cyan(f.ID), counts[taskgraph.StatusDone], len(st.Graph.Tasks()))
		if n := counts[taskgraph.StatusFailed]; n > 0 {
			fmt.Fprintf(a.out, ", %s", red(fmt.Sprintf("%d failed", n)))
		}
		if st.LastRun != nil {
			fmt.Fprintf(a.out, "  %s", gray(st.LastRun.State))
		}
		fmt.Fprintln(a.out)
	}
	return nil
}

func printStatus(a *app, st *phaseflow.FeatureStatus) {
	fmt.Fprintf(a.out, "\n%s\n\n", cyan("=== "+st.Feature.ID+" ==="))

	if st.Graph == nil {
		fmt.Fprintf(a.out, "  %s\n", gray("No active task list. Store one with 'phaseflow put' and build it."))
		return
	}

	for _, p := range st.Graph.Phases {
		g := st.Gate(p.Index)
		fmt.Fprintf(a.out, "%s  %s", yellow(fmt.Sprintf("Phase %d: %s", p.Index, p.Name)), gateLabel(g.State))
		if g.Branch != "" {
			fmt.Fprintf(a.out, "  %s", gray(g.Branch))
		}
		if g.ReviewID > 0 {
			fmt.Fprintf(a.out, "  %s", gray(fmt.Sprintf("review #%d", g.ReviewID)))
		}
		if g.Approver != "" {
			fmt.Fprintf(a.out, "  %s", gray("approved by "+g.Approver))
		}
		switch {
		case g.Outcome == gate.OutcomeEmpty || g.Outcome == gate.OutcomeNoWork:
			fmt.Fprintf(a.out, "  %s", yellow("no commits"))
		case g.Empty && g.State == gate.AwaitingApproval:
			fmt.Fprintf(a.out, "  %s", yellow("no commits, approve to close"))
		}
		fmt.Fprintln(a.out)

		for _, t := range p.Tasks {
			fmt.Fprintf(a.out, "  %s %s %s", statusIcon(t.Status), t.ID, t.Description)
			if t.Status == taskgraph.StatusSkipped && t.SkipReason != "" {
				fmt.Fprintf(a.out, " %s", gray("("+t.SkipReason+")"))
			}
			fmt.Fprintln(a.out)
		}
		fmt.Fprintln(a.out)
	}

	if r := st.LastRun; r != nil {
		fmt.Fprintf(a.out, "Last run:  %s in phase %d, started %s", r.State, r.Phase, r.StartedAt.Format(time.DateTime))
		if !r.Finished() {
			fmt.Fprintf(a.out, " %s", red("(did not finish)"))
		}
		fmt.Fprintln(a.out)
	}
	if st.Drift != nil {
		fmt.Fprintf(a.out, "Drift:     %s\n", driftLabel(st.Drift))
	}
}

func statusIcon(s taskgraph.Status) string {
	switch s {
	case taskgraph.StatusDone:
		return green("✓")
	case taskgraph.StatusFailed:
		return red("✗")
	case taskgraph.StatusRunning:
		return yellow("●")
	case taskgraph.StatusSkipped:
		return gray("-")
	case taskgraph.StatusReady:
		return "○"
	}
	return gray("○")
}

func gateLabel(s gate.State) string {
	switch s {
	case gate.Closed:
		return green(string(s))
	case gate.AwaitingApproval, gate.AwaitingCI, gate.AwaitingReview:
		return yellow(string(s))
	case gate.NotStarted:
		return gray(string(s))
	}
	return string(s)
}

func driftLabel(r *drift.Report) string {
	switch r.Category {
	case drift.CategoryCritical:
		return red(r.Summary())
	case drift.CategoryAlert:
		return yellow(r.Summary())
	}
	return r.Summary()
}
