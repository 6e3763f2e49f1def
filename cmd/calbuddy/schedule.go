package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/ternarybob/calbuddy/internal/app"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/models"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a cron schedule",
	Long: `Keeps running and executes a collection run on every cron tick. A tick that
fires while a run is still in progress is skipped. Runs always diff against the
most recent stored run and collect the current day or week.`,
	RunE: runSchedule,
}

var (
	scheduleCron  string
	scheduleMode  string
	scheduleEmail bool
	scheduleNow   bool
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "Cron expression (overrides [schedule] cron)")
	scheduleCmd.Flags().StringVar(&scheduleMode, "mode", "", "Collection range: day or week (overrides [schedule] mode)")
	scheduleCmd.Flags().BoolVar(&scheduleEmail, "email", false, "Email the results of every run")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Run once immediately before waiting for the schedule")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	if scheduleCron != "" {
		config.Schedule.Cron = scheduleCron
	}
	if scheduleMode != "" {
		config.Schedule.Mode = scheduleMode
	}
	if config.Schedule.Cron == "" {
		return errors.New("no schedule: set --cron or [schedule] cron")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	common.PrintBanner(common.Version)
	common.LogStartup(config, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	service := application.EnableSchedule(app.RunRequest{
		Mode:         models.RunMode(config.Schedule.Mode),
		BaselineLast: true,
		SendEmail:    scheduleEmail || config.Email.Enabled,
	})
	if err := service.Start(ctx, config.Schedule.Cron); err != nil {
		return err
	}

	srv, err := startServer(application)
	if err != nil {
		return err
	}
	if srv != nil {
		defer shutdownServer(srv)
	}

	if next := service.Status().NextRun; next != nil {
		pterm.Success.Printf("Scheduled %q, next run %s\n", config.Schedule.Cron, next.Format("2006-01-02 15:04"))
	} else {
		pterm.Success.Printf("Scheduled %q\n", config.Schedule.Cron)
	}
	pterm.Info.Println("Press Ctrl+C to stop")

	if scheduleNow {
		common.SafeGo(logger, "scheduled-run-now", func() {
			service.TriggerNow()
		})
	}

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received")
	pterm.Warning.Println("Stopping scheduler, waiting for the active run to finish")
	return nil
}
