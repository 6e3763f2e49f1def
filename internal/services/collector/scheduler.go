package collector

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"golang.org/x/sync/errgroup"
)

// RunOptions controls one collection run
type RunOptions struct {
	RunID       string
	WorkerCount int
	TestMode    bool
	TestLimit   int
}

// Output is the merged result of a run. Diff is filled in by the caller when
// a baseline was supplied.
type Output struct {
	Results    []models.JobResult
	Incomplete []models.IncompleteJob
	Diff       *models.DiffRecord
	Stats      models.RunStats
}

// Scheduler fans a job list out over parallel workers, one session per batch
type Scheduler struct {
	provider  interfaces.SessionProvider
	processor JobProcessor
	events    interfaces.EventService
	logger    arbor.ILogger
}

// NewScheduler creates a Scheduler. events may be nil.
func NewScheduler(provider interfaces.SessionProvider, processor JobProcessor, events interfaces.EventService, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		provider:  provider,
		processor: processor,
		events:    events,
		logger:    logger,
	}
}

// Run processes every job exactly once and returns the merged output. Job
// failures never abort the run; ErrNoWorkerStarted is returned alongside the
// output when no worker could acquire a session.
func (s *Scheduler) Run(ctx context.Context, jobs []models.JobMetadata, opts RunOptions) (*Output, error) {
	if opts.TestMode && opts.TestLimit > 0 && len(jobs) > opts.TestLimit {
		s.logger.Info().
			Int("limit", opts.TestLimit).
			Int("available", len(jobs)).
			Msg("Test mode: capping job list")
		jobs = jobs[:opts.TestLimit]
	}

	batches := Partition(jobs, opts.WorkerCount)
	state := NewRunState(opts.RunID, len(jobs), len(batches))

	s.logger.Info().
		Str("run_id", opts.RunID).
		Int("jobs", len(jobs)).
		Int("workers", len(batches)).
		Msg("Starting collection run")

	started := make([]bool, len(batches))
	var g errgroup.Group
	for i, batch := range batches {
		g.Go(func() error {
			started[i] = s.runWorker(ctx, batch, state)
			return nil
		})
	}
	_ = g.Wait()

	results, incomplete := state.Results()
	finished := time.Now()
	startedAt := state.StartedAt()
	if startedAt.IsZero() {
		startedAt = finished
	}
	final := state.Snapshot()

	host, _ := os.Hostname()
	out := &Output{
		Results:    results,
		Incomplete: incomplete,
		Stats: models.RunStats{
			Workers:    len(batches),
			Total:      len(jobs),
			Collected:  len(results),
			Failed:     len(incomplete),
			StartedAt:  startedAt,
			FinishedAt: finished,
			Duration:   finished.Sub(startedAt),
			SecPerJob:  final.SecPerJob,
			Host:       host,
		},
	}

	s.publish(ctx, interfaces.EventRunCompleted, out.Stats)

	s.logger.Info().
		Str("run_id", opts.RunID).
		Int("collected", len(results)).
		Int("incomplete", len(incomplete)).
		Dur("duration", out.Stats.Duration).
		Msg("Collection run finished")

	if len(batches) > 0 && !anyTrue(started) {
		return out, ErrNoWorkerStarted
	}
	return out, nil
}

// runWorker owns one session for the lifetime of its batch. It reports
// whether the session was acquired.
func (s *Scheduler) runWorker(ctx context.Context, batch models.Batch, state *RunState) bool {
	workerID := batch.Index + 1
	logger := s.logger.WithCorrelationId(fmt.Sprintf("worker-%d", workerID))

	if ctx.Err() != nil {
		logger.Warn().Int("worker", workerID).Msg("Worker aborted before session acquisition")
		s.abort(ctx, state, workerID, batch.Jobs)
		return false
	}

	session, err := s.provider.Acquire(ctx, workerID)
	if err != nil && ctx.Err() != nil {
		logger.Warn().Int("worker", workerID).Err(err).Msg("Worker aborted during session acquisition")
		s.abort(ctx, state, workerID, batch.Jobs)
		return false
	}
	if err != nil {
		logger.Error().
			Int("worker", workerID).
			Int("jobs", len(batch.Jobs)).
			Err(err).
			Msg("Session acquisition failed, abandoning batch")
		for _, job := range batch.Jobs {
			s.finish(ctx, state, workerID, job, nil, newJobError(models.FailureSessionAcquisition, job.ID, ErrSessionAcquisition, err))
		}
		return false
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn().Int("worker", workerID).Err(err).Msg("Failed to close session")
		}
	}()

	s.publish(ctx, interfaces.EventSessionAcquired, workerID)
	state.MarkStarted()

	for i, job := range batch.Jobs {
		if ctx.Err() != nil {
			s.abort(ctx, state, workerID, batch.Jobs[i:])
			logger.Warn().
				Int("worker", workerID).
				Int("aborted", len(batch.Jobs)-i).
				Msg("Worker aborted")
			return true
		}

		result, err := s.processJob(ctx, session, job, logger)
		s.finish(ctx, state, workerID, job, result, err)
	}
	return true
}

// abort marks jobs the worker will never reach
func (s *Scheduler) abort(ctx context.Context, state *RunState, workerID int, jobs []models.JobMetadata) {
	for _, job := range jobs {
		s.finish(ctx, state, workerID, job, nil, newJobError(models.FailureWorkerAborted, job.ID, ErrWorkerAborted, ctx.Err()))
	}
}

// processJob shields the worker from a panicking processor
func (s *Scheduler) processJob(ctx context.Context, session interfaces.BrowserSession, job models.JobMetadata, logger arbor.ILogger) (result *models.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic while processing job")
			result = nil
			err = newJobError(models.FailureExtraction, job.ID, ErrExtraction, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err = s.processor.Process(ctx, session, job)
	if err == nil && result == nil {
		err = newJobError(models.FailureExtraction, job.ID, ErrExtraction, fmt.Errorf("no result"))
	}
	return result, err
}

func (s *Scheduler) finish(ctx context.Context, state *RunState, workerID int, job models.JobMetadata, result *models.JobResult, err error) {
	outcome := models.JobOutcome{WorkerID: workerID, Job: job}

	var snapshot models.ProgressSnapshot
	if err != nil {
		failure := toIncomplete(job, err)
		outcome.Failure = &failure
		snapshot = state.Complete(nil, &failure)

		s.logger.Warn().
			Int("worker", workerID).
			Str("job_id", job.ID).
			Str("kind", string(failure.FailureKind)).
			Str("reason", failure.FailureReason).
			Msg("Job incomplete")
	} else {
		outcome.Result = result
		snapshot = state.Complete(result, nil)
	}

	s.publish(ctx, interfaces.EventJobCompleted, outcome)
	s.publish(ctx, interfaces.EventProgress, snapshot)
}

func (s *Scheduler) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, Payload: payload}
	if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Debug().Str("event", string(eventType)).Err(err).Msg("Failed to publish event")
	}
}

func anyTrue(values []bool) bool {
	for _, v := range values {
		if v {
			return true
		}
	}
	return false
}
