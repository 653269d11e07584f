// Command phaseflow builds task graphs from feature artifacts, runs them
// phase by phase and holds each phase for review and approval.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/config"
	pferrors "github.com/randalmurphal/phaseflow/errors"
	"github.com/randalmurphal/phaseflow/git"
	"github.com/randalmurphal/phaseflow/metrics"
	"github.com/randalmurphal/phaseflow/project"
)

var version = "dev"

func main() {
	a := &app{out: os.Stdout, errOut: os.Stderr}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(pferrors.ExitCode(err))
	}
}

// app carries the global flags and opens the project for each command.
type app struct {
	root    string
	verbose bool
	noColor bool
	sets    []string

	out    io.Writer
	errOut io.Writer

	// resolver pins config file locations in tests.
	resolver *config.Resolver
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phaseflow",
		Short: "Phased task orchestration with drift detection",
		Long: `phaseflow turns a feature's specification, plan and task list into a
phased execution schedule. Each phase runs on its own branch, is pushed for
review and waits for an explicit approval before the next phase starts.

Typical session:
  phaseflow new "Add caching"
  phaseflow put 001 spec spec.md
  phaseflow put 001 plan plan.md
  phaseflow put 001 tasks tasks.md
  phaseflow build 001
  phaseflow run 001
  phaseflow approve 001 1 --token <token>
  phaseflow run 001`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if a.noColor {
				color.NoColor = true
			}
		},
	}
	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	cmd.PersistentFlags().StringVar(&a.root, "root", "", "project directory (defaults to the current directory)")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log engine activity to stderr")
	cmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringArrayVar(&a.sets, "set", nil, "override a config key for this invocation (key=value)")

	cmd.AddCommand(
		newFeatureCmd(a),
		newPutCmd(a),
		newArchiveCmd(a),
		newRestoreCmd(a),
		newBuildCmd(a),
		newRunCmd(a),
		newApproveCmd(a),
		newResetCmd(a),
		newSkipCmd(a),
		newStatusCmd(a),
		newDriftCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
	)
	return cmd
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))
}

func (a *app) flags() (map[string]string, error) {
	flags := make(map[string]string, len(a.sets))
	for _, kv := range a.sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--set %q: want key=value", kv)
		}
		flags[k] = v
	}
	return flags, nil
}

// project resolves the project context from --root.
func (a *app) project() (*project.Context, error) {
	flags, err := a.flags()
	if err != nil {
		return nil, err
	}
	logger := a.logger()
	pc, err := project.Open(project.Options{
		Dir:      a.root,
		Flags:    flags,
		Logger:   logger,
		Resolver: a.resolver,
	})
	if err != nil {
		if errors.Is(err, git.ErrNotGitRepo) {
			return nil, pferrors.NewNotInGitRepoError()
		}
		return nil, err
	}
	if pc.Settings.NoColor {
		color.NoColor = true
	}
	return pc, nil
}

// engine opens the project and the engine. The caller closes the engine.
func (a *app) engine(opts phaseflow.Options) (*phaseflow.Engine, error) {
	pc, err := a.project()
	if err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Default()
	}
	return phaseflow.New(pc, opts)
}

// withEngine runs fn against an opened engine and describes its error for
// the operator.
func (a *app) withEngine(feature string, fn func(*phaseflow.Engine) error) error {
	eng, err := a.engine(phaseflow.Options{})
	if err != nil {
		return pferrors.Describe(feature, err)
	}
	defer eng.Close()
	return pferrors.Describe(feature, fn(eng))
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)
