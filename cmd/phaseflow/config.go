package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/phaseflow/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Settings resolve from defaults, ~/.config/phaseflow/config.yaml,
.phaseflow.yaml in the git root, PHASEFLOW_* environment variables and
--set flags, later sources winning.

Drift weights and thresholds, routing rules, checks and memory rules live
in .phaseflow/policy.yaml.`,
	}
	cmd.AddCommand(newConfigGetCmd(a), newConfigSetCmd(a))
	return cmd
}

func (a *app) resolved() (*config.Resolved, error) {
	flags, err := a.flags()
	if err != nil {
		return nil, err
	}
	r := a.resolver
	if r == nil {
		dir := a.root
		if dir == "" {
			dir = "."
		}
		r = config.NewResolverAt(config.Phaseflow(), dir)
	}
	return r.ResolveWithFlags(flags), nil
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get [key]",
		Short: "Print resolved settings and where they come from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.resolved()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				v, src := cfg.GetWithSource(args[0])
				fmt.Fprintf(a.out, "%s %s\n", v, gray("("+string(src)+")"))
				return nil
			}
			keys := cfg.Keys()
			sort.Strings(keys)
			for _, k := range keys {
				v, src := cfg.GetWithSource(k)
				if isSecret(k) && v != "" {
					v = "********"
				}
				fmt.Fprintf(a.out, "%-26s %s %s\n", k, v, gray("("+string(src)+")"))
			}
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	var global bool
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a setting to .phaseflow.yaml, or the global config with --global",
		Long: `Write a setting. Project settings go to .phaseflow.yaml in the git root;
tokens and secrets can only be stored globally.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			saver := config.Saver()
			if global {
				if err := saver.SaveGlobal(args[0], args[1]); err != nil {
					return err
				}
				path, _ := saver.GlobalPath()
				fmt.Fprintf(a.out, "%s %s saved to %s\n", green("✓"), args[0], path)
				return nil
			}
			pc, err := a.project()
			if err != nil {
				return err
			}
			if err := saver.SaveLocal(pc.Root, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s saved to .phaseflow.yaml\n", green("✓"), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&global, "global", "g", false, "write to the global config")
	return cmd
}

func isSecret(key string) bool {
	switch key {
	case config.KeyGitHubToken, config.KeyGitLabToken, config.KeyApprovalSecret:
		return true
	}
	return false
}
