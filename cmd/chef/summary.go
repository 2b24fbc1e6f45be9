package main

import (
	"fmt"
	"io"

	"github.com/benbjohnson/chef"
	"github.com/logrusorgru/aurora"
)

// printSummary writes the colored statistics of a finished session.
func printSummary(w io.Writer, name string, stats chef.Stats) {
	fmt.Fprintln(w, aurora.Bold(name), "explored in", stats.Elapsed)

	failed := fmt.Sprint(stats.ErrorPaths, " errors")
	if stats.ErrorPaths > 0 {
		fmt.Fprintln(w, "  paths:", aurora.BrightGreen(stats.Paths), "with", aurora.Red(failed))
	} else {
		fmt.Fprintln(w, "  paths:", aurora.BrightGreen(stats.Paths), "with", failed)
	}

	for _, c := range chef.Categories {
		fmt.Fprintln(w, "  "+aurora.Cyan(fmt.Sprintf("%-9s", c.String()+":")).String(), stats.Records[c])
	}

	fmt.Fprintln(w, "  instructions:", aurora.Magenta(stats.Instructions),
		"tree nodes:", aurora.Magenta(stats.TreeNodes),
		"fork points:", aurora.Magenta(stats.ForkPoints))
	if stats.TerminatedPending > 0 {
		fmt.Fprintln(w, "  pending paths dropped:", aurora.Yellow(stats.TerminatedPending))
	}
}
