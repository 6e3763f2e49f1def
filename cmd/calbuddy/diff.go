package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/ternarybob/calbuddy/internal/services/export"
	"github.com/ternarybob/calbuddy/internal/services/reconcile"
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-jobs-file> <new-jobs-file>",
	Short: "Compare two exported jobs files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		old, err := export.LoadJobsFile(args[0])
		if err != nil {
			return err
		}
		current, err := export.LoadJobsFile(args[1])
		if err != nil {
			return err
		}

		diff := reconcile.Diff(old, current)
		logger.Debug().
			Int("old", len(old)).
			Int("new", len(current)).
			Int("added", len(diff.Added)).
			Int("removed", len(diff.Removed)).
			Int("moved", len(diff.Moved)).
			Msg("Jobs files compared")

		if diff.Empty() {
			pterm.Success.Println("No changes")
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), reconcile.FormatChangeReport(diff))
		return nil
	},
}
