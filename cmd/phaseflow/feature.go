package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow"
	"github.com/randalmurphal/phaseflow/artifact"
)

func newFeatureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Create a feature",
		Long: `Create a feature directory with the next free number.

The feature is addressed by its number ("001") or full id ("001-add-caching")
in all other commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine("", func(eng *phaseflow.Engine) error {
				f, err := eng.CreateFeature(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Created feature %s\n", green("✓"), cyan(f.ID))
				fmt.Fprintf(a.out, "  %s\n", gray(f.Dir))
				fmt.Fprintf(a.out, "\nNext: phaseflow put %03d spec <file>\n", f.Number)
				return nil
			})
		},
	}
}

func newPutCmd(a *app) *cobra.Command {
	var draft bool
	cmd := &cobra.Command{
		Use:   "put <feature> <kind> <file>",
		Short: "Store a new version of a feature artifact",
		Long: `Store the content of <file> as the next version of an artifact.

Kinds: spec, plan, tasks. The new version becomes active unless --draft is
given; an incremental build reads the latest draft task list.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			feature, kind, file := args[0], artifact.Kind(args[1]), args[2]
			switch kind {
			case artifact.KindSpecification, artifact.KindPlan, artifact.KindTaskList:
			default:
				return fmt.Errorf("unknown artifact kind %q (want spec, plan or tasks)", kind)
			}
			body, err := os.ReadFile(file) //nolint:gosec // operator-supplied path
			if err != nil {
				return err
			}
			return a.withEngine(feature, func(eng *phaseflow.Engine) error {
				art, err := eng.PutArtifact(feature, kind, body, !draft)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s %s v%d (%s)\n", green("✓"), art.Ref, art.Version, art.Status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&draft, "draft", false, "store as a draft without activating it")
	return cmd
}

func newArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <feature>",
		Short: "Compress a feature's artifacts and remove its directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(args[0], func(eng *phaseflow.Engine) error {
				f, err := eng.Artifacts().Feature(args[0])
				if err != nil {
					return err
				}
				path, err := eng.Artifacts().Archive(f.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Archived %s to %s\n", green("✓"), f.ID, path)
				return nil
			})
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <feature-id>",
		Short: "Restore an archived feature",
		Long:  `Restore an archived feature. The full id is required, e.g. 001-add-caching.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(args[0], func(eng *phaseflow.Engine) error {
				if err := eng.Artifacts().Restore(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s Restored %s\n", green("✓"), args[0])
				return nil
			})
		},
	}
}
