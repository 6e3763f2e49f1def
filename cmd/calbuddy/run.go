package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/ternarybob/calbuddy/internal/app"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/ternarybob/calbuddy/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect the calendar once and export the results",
	Long: `Scans the install calendar for the selected day or week, collects every
job with a pool of authenticated sessions, writes the jobs, unparsed and change
reports, and optionally emails them.`,
	RunE: runRun,
}

var (
	runDay          string
	runMode         string
	runBaseline     string
	runBaselineLast bool
	runJobsFile     string
	runProgressBar  bool
	runTest         bool
	runTestLimit    int
	runWorkers      int
	runEmail        bool
)

func init() {
	runCmd.Flags().StringVar(&runDay, "day", "", "Day to collect (YYYY-MM-DD, default today)")
	runCmd.Flags().StringVar(&runMode, "mode", "day", "Collection range: day or week")
	runCmd.Flags().StringVar(&runBaseline, "baseline", "", "Previous jobs file to diff against")
	runCmd.Flags().BoolVar(&runBaselineLast, "baseline-last", false, "Diff against the most recent stored run")
	runCmd.Flags().StringVar(&runJobsFile, "jobs-file", "", "YAML job list used instead of the calendar")
	runCmd.Flags().BoolVar(&runProgressBar, "progress-bar", false, "Show a terminal progress bar")
	runCmd.Flags().BoolVar(&runTest, "test", false, "Test mode: collect only the first jobs")
	runCmd.Flags().IntVar(&runTestLimit, "test-limit", 0, "Jobs collected in test mode (overrides config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "Concurrent sessions (overrides config)")
	runCmd.Flags().BoolVar(&runEmail, "email", false, "Email the results when finished")
}

// buildRequest applies the run flags to the configuration and returns the request
func buildRequest() (app.RunRequest, error) {
	req := app.RunRequest{
		Mode:         models.RunMode(runMode),
		JobsFile:     runJobsFile,
		BaselineFile: runBaseline,
		BaselineLast: runBaselineLast,
		SendEmail:    runEmail,
	}

	switch req.Mode {
	case models.RunModeDay, models.RunModeWeek:
	default:
		return req, fmt.Errorf("invalid --mode %q: must be day or week", runMode)
	}
	if req.BaselineFile != "" && req.BaselineLast {
		return req, errors.New("--baseline and --baseline-last are mutually exclusive")
	}

	if runDay != "" {
		day, err := time.ParseInLocation("2006-01-02", runDay, time.Local)
		if err != nil {
			return req, fmt.Errorf("invalid --day %q: %w", runDay, err)
		}
		req.Day = day
	}

	if runTest {
		config.Collector.TestMode = true
	}
	if runTestLimit > 0 {
		config.Collector.TestLimit = runTestLimit
	}
	if runWorkers > 0 {
		config.Collector.Workers = runWorkers
	}
	if req.SendEmail && !config.Email.Enabled {
		pterm.Warning.Println("Email requested but [email] is not enabled in the configuration")
	}

	return req, config.Validate()
}

func runRun(cmd *cobra.Command, args []string) error {
	req, err := buildRequest()
	if err != nil {
		return err
	}

	common.PrintBanner(common.Version)
	common.LogStartup(config, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger, app.Options{ProgressBar: runProgressBar})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	srv, err := startServer(application)
	if err != nil {
		return err
	}
	if srv != nil {
		defer shutdownServer(srv)
	}

	report, err := application.Execute(ctx, req)
	if errors.Is(err, app.ErrNoJobs) {
		pterm.Warning.Println("No jobs found for the selected range")
		return nil
	}
	if report == nil {
		return err
	}

	fmt.Println()
	fmt.Print(report.Stats)
	fmt.Println()
	if err != nil {
		pterm.Error.Printf("Collected none of %d jobs\n", report.Output.Stats.Total)
	} else {
		pterm.Success.Printf("Collected %d of %d jobs\n", len(report.Output.Results), report.Output.Stats.Total)
	}
	for _, file := range report.Files.Attachments() {
		pterm.Info.Printf("Wrote %s\n", file)
	}
	if diff := report.Output.Diff; diff != nil {
		pterm.Info.Printf("Changes: %d added, %d removed, %d moved\n", len(diff.Added), len(diff.Removed), len(diff.Moved))
	}
	return err
}

// startServer serves progress and run history when [progress] listen_addr is set
func startServer(application *app.App) (*server.Server, error) {
	if config.Progress.ListenAddr == "" {
		return nil, nil
	}

	srv := server.New(application)
	if err := srv.Listen(); err != nil {
		return nil, err
	}

	common.SafeGo(logger, "progress-server", func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("Progress server failed")
		}
	})

	pterm.Info.Printf("Progress available at ws://%s/ws\n", srv.Addr())
	return srv, nil
}

func shutdownServer(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown failed")
	}
}
