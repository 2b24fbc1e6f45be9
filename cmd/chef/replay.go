package main

import (
	"github.com/benbjohnson/chef/replay"
	"github.com/spf13/cobra"
)

func newReplayCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script>",
		Short: "Replay a recorded exploration script",
		Long: `Replay feeds a YAML (.yaml, .yml) or msgpack (.msgpack, .mp) exploration
script through a session and writes test cases to the output directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := replay.ReadScriptFile(args[0])
			if err != nil {
				return err
			}

			stats, err := g.runScript(cmd, script)
			printSummary(cmd.OutOrStdout(), script.Name, stats)
			return err
		},
	}
}
