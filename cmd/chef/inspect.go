package main

import (
	"fmt"

	"github.com/benbjohnson/chef/replay"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

func newInspectCommand(g *globals) *cobra.Command {
	var convert string

	cmd := &cobra.Command{
		Use:   "inspect <script>",
		Short: "Dump a decoded exploration script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := replay.ReadScriptFile(args[0])
			if err != nil {
				return err
			}

			if convert != "" {
				if err := replay.WriteScriptFile(convert, script); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", convert)
				return nil
			}

			cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
			cfg.Fdump(cmd.OutOrStdout(), script)
			return nil
		},
	}
	cmd.Flags().StringVar(&convert, "convert", "", "Re-encode the script to this file instead of dumping it")
	return cmd
}
