package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/ternarybob/calbuddy/internal/storage"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, err := storage.NewStorageManager(logger, config)
		if err != nil {
			return err
		}
		defer manager.Close()

		runs, err := manager.RunStorage().ListRuns(context.Background(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			pterm.Warning.Println("No stored runs")
			return nil
		}

		data := pterm.TableData{{"ID", "Started", "Mode", "Tag", "Collected", "Failed", "Added", "Removed", "Moved"}}
		for _, run := range runs {
			data = append(data, []string{
				run.ID,
				run.StartedAt.Format("2006-01-02 15:04"),
				string(run.Mode),
				run.Tag,
				strconv.Itoa(len(run.Results)),
				strconv.Itoa(len(run.Incomplete)),
				strconv.Itoa(run.AddedCount),
				strconv.Itoa(run.RemovedCount),
				strconv.Itoa(run.MovedCount),
			})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return fmt.Errorf("failed to render runs: %w", err)
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to show")
}
