package main

import (
	"fmt"

	"github.com/benbjohnson/chef/replay"
	"github.com/benbjohnson/chef/ssaguest"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newExploreCommand(g *globals) *cobra.Command {
	opts := ssaguest.DefaultOptions()
	var save string

	cmd := &cobra.Command{
		Use:   "explore <package> <function>",
		Short: "Enumerate and explore the paths of a Go function",
		Long: `Explore builds the package in SSA form, enumerates the paths of the
function by forking at every conditional branch, and explores them in a
session. Each SSA instruction is a high-level instruction.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := ssaguest.LoadFunction(args[0], args[1])
			if err != nil {
				return fmt.Errorf("load %s.%s: %w", args[0], args[1], err)
			}

			script, err := ssaguest.NewGuest(fn).Script(opts)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"function": fn.String(), "paths": len(script.Paths)}).Info("paths enumerated")

			if save != "" {
				if err := replay.WriteScriptFile(save, script); err != nil {
					return err
				}
			}

			stats, err := g.runScript(cmd, script)
			printSummary(cmd.OutOrStdout(), script.Name, stats)
			return err
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.MaxPaths, "max-paths", opts.MaxPaths, "Maximum number of paths")
	flags.IntVar(&opts.MaxBlockVisits, "max-block-visits", opts.MaxBlockVisits, "Block entries per path before it is cut")
	flags.DurationVar(&opts.Step, "step", opts.Step, "Virtual time per event")
	flags.StringVar(&save, "save", "", "Write the enumerated script to this file")
	return cmd
}
