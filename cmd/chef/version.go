package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chef version %s", version)
			if buildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (built %s)", buildTime)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
