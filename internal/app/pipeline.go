package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/ternarybob/calbuddy/internal/services/calendar"
	"github.com/ternarybob/calbuddy/internal/services/collector"
	"github.com/ternarybob/calbuddy/internal/services/export"
	"github.com/ternarybob/calbuddy/internal/services/reconcile"
)

// ErrNoJobs is returned when the calendar or job list yields nothing to collect
var ErrNoJobs = errors.New("no jobs found")

// RunRequest describes one pipeline execution
type RunRequest struct {
	Mode         models.RunMode
	Day          time.Time // zero means today
	JobsFile     string    // YAML job list used instead of the calendar pass
	BaselineFile string    // exported jobs file to diff against
	BaselineLast bool      // diff against the most recent stored run
	SendEmail    bool
}

// RunReport is what a finished pipeline produced
type RunReport struct {
	Run    *models.RunRecord
	Output *collector.Output
	Files  export.Files
	Stats  string
}

// Execute runs the whole pipeline: job list, collection, reconciliation
// against the baseline, export, run history and email. When no worker could
// start, the report is returned together with an error wrapping
// collector.ErrNoWorkerStarted.
func (a *App) Execute(ctx context.Context, req RunRequest) (*RunReport, error) {
	if req.Mode == "" {
		req.Mode = models.RunModeDay
	}
	if req.Day.IsZero() {
		req.Day = a.now()
	}

	runID := uuid.New().String()
	logger := a.Logger.WithCorrelationId(runID)
	startedAt := a.now()

	logger.Info().
		Str("mode", string(req.Mode)).
		Str("day", req.Day.Format("2006-01-02")).
		Str("jobs_file", req.JobsFile).
		Msg("Pipeline started")

	jobs, err := a.loadJobs(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		logger.Warn().Msg("No jobs found, nothing to collect")
		return nil, ErrNoJobs
	}

	out, runErr := a.Scheduler.Run(ctx, jobs, collector.RunOptions{
		RunID:       runID,
		WorkerCount: a.Config.Collector.Workers,
		TestMode:    a.Config.Collector.TestMode,
		TestLimit:   a.Config.Collector.TestLimit,
	})
	if runErr != nil && (out == nil || !errors.Is(runErr, collector.ErrNoWorkerStarted)) {
		return nil, fmt.Errorf("collection failed: %w", runErr)
	}
	if runErr != nil {
		// Every job is incomplete; the files are still written and the run recorded
		logger.Error().Err(runErr).Int("jobs", len(jobs)).Msg("No worker started, writing incomplete run")
		runErr = fmt.Errorf("collection failed: %w", runErr)
	}
	out.Stats.Mode = req.Mode

	baseline, err := a.loadBaseline(ctx, req, logger)
	if err != nil {
		return nil, err
	}
	if baseline != nil && runErr != nil {
		logger.Warn().Msg("Skipping change report, no job was collected")
		baseline = nil
	}
	if baseline != nil {
		start, end := export.Range(req.Mode, req.Day)
		filtered := reconcile.FilterByDateRange(baseline, start, end)
		diff := reconcile.Diff(filtered, out.Results)
		out.Diff = &diff

		logger.Info().
			Int("baseline", len(filtered)).
			Int("added", len(diff.Added)).
			Int("removed", len(diff.Removed)).
			Int("moved", len(diff.Moved)).
			Msg("Reconciled against baseline")
	}

	tag := export.Tag(req.Mode, req.Day)
	rangeLabel := export.RangeLabel(req.Mode, req.Day)
	files, err := a.Exporter.Export(tag, "Jobs "+rangeLabel, out.Results, out.Incomplete, out.Diff)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}

	stats := export.FormatStats(out.Stats, rangeLabel)
	for _, line := range strings.Split(strings.TrimRight(stats, "\n"), "\n") {
		logger.Info().Msg(line)
	}

	run := a.buildRecord(runID, tag, req, startedAt, out)
	if a.Config.Output.SaveRuns {
		if err := a.StorageManager.RunStorage().SaveRun(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("Failed to save run history")
		}
	}

	if req.SendEmail {
		if err := a.Mailer.SendRunResults(ctx, files.Attachments(), rangeLabel, stats); err != nil {
			logger.Error().Err(err).Msg("Failed to email run results")
		}
	}

	logger.Info().
		Int("collected", len(out.Results)).
		Int("incomplete", len(out.Incomplete)).
		Dur("elapsed", a.now().Sub(startedAt)).
		Msg("Pipeline completed")

	return &RunReport{
		Run:    run,
		Output: out,
		Files:  files,
		Stats:  stats,
	}, runErr
}

// loadJobs reads the job list file or scans the calendar with a dedicated session
func (a *App) loadJobs(ctx context.Context, req RunRequest, logger arbor.ILogger) ([]models.JobMetadata, error) {
	if req.JobsFile != "" {
		jobs, err := calendar.LoadJobList(req.JobsFile)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("jobs", len(jobs)).Str("file", req.JobsFile).Msg("Job list loaded")
		return jobs, nil
	}

	session, err := a.Provider.Acquire(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open calendar session: %w", err)
	}
	defer session.Close()

	jobs, err := a.Scanner.Scan(ctx, session, calendar.ScanOptions{
		Mode:        req.Mode,
		SelectedDay: req.Day,
		TestMode:    a.Config.Collector.TestMode,
		TestLimit:   a.Config.Collector.TestLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar scan failed: %w", err)
	}
	return jobs, nil
}

// loadBaseline returns the previous job list, or nil when no baseline was requested
func (a *App) loadBaseline(ctx context.Context, req RunRequest, logger arbor.ILogger) ([]models.JobResult, error) {
	switch {
	case req.BaselineFile != "":
		jobs, err := export.LoadJobsFile(req.BaselineFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load baseline: %w", err)
		}
		logger.Info().Int("jobs", len(jobs)).Str("file", req.BaselineFile).Msg("Baseline loaded from file")
		return jobs, nil

	case req.BaselineLast:
		previous, err := a.StorageManager.RunStorage().LatestRun(ctx)
		if errors.Is(err, interfaces.ErrNotFound) {
			logger.Warn().Msg("No stored run to use as baseline, skipping change report")
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load baseline run: %w", err)
		}
		logger.Info().Str("baseline_run", previous.ID).Int("jobs", len(previous.Results)).Msg("Baseline loaded from run history")
		if previous.Results == nil {
			return []models.JobResult{}, nil
		}
		return previous.Results, nil
	}
	return nil, nil
}

func (a *App) buildRecord(runID, tag string, req RunRequest, startedAt time.Time, out *collector.Output) *models.RunRecord {
	start, end := export.Range(req.Mode, req.Day)
	run := &models.RunRecord{
		ID:         runID,
		Mode:       req.Mode,
		RangeStart: start,
		RangeEnd:   end,
		Tag:        tag,
		StartedAt:  startedAt,
		Stats:      out.Stats,
		Results:    out.Results,
		Incomplete: out.Incomplete,
	}
	if out.Diff != nil {
		run.AddedCount = len(out.Diff.Added)
		run.RemovedCount = len(out.Diff.Removed)
		run.MovedCount = len(out.Diff.Moved)
	}
	return run
}
