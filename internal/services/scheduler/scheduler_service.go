package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// ErrAlreadyRunning is returned by Start on a running scheduler
var ErrAlreadyRunning = errors.New("scheduler already running")

// RunFunc executes one full collection run
type RunFunc func(ctx context.Context) error

// Status is a point-in-time view of the scheduler
type Status struct {
	Schedule     string
	Running      bool
	IsProcessing bool
	LastRun      *time.Time
	NextRun      *time.Time
	LastError    string
	Skipped      int
}

// Service runs the collection pipeline on a cron schedule. A tick that
// fires while a run is still active is skipped.
type Service struct {
	cron     *cron.Cron
	run      RunFunc
	logger   arbor.ILogger
	mu       sync.Mutex // protects the fields below
	ctx      context.Context
	schedule string
	entryID  cron.EntryID
	running  bool
	active   bool
	lastRun  *time.Time
	lastErr  string
	skipped  int
}

// NewService creates a new scheduler service
func NewService(run RunFunc, logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		run:    run,
		logger: logger,
	}
}

// Start registers cronExpr and begins ticking. Runs receive ctx, so
// cancelling it aborts an in-flight run.
func (s *Service) Start(ctx context.Context, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if cronExpr == "" {
		return fmt.Errorf("cron expression is required")
	}

	id, err := s.cron.AddFunc(cronExpr, s.runScheduledTask)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	s.ctx = ctx
	s.schedule = cronExpr
	s.entryID = id
	s.running = true
	s.cron.Start()

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Str("next_run", s.cron.Entry(id).Schedule.Next(time.Now()).Format(time.RFC3339)).
		Msg("Scheduler started")

	return nil
}

// Stop halts ticking and waits for an active run to finish, or for ctx
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out waiting for active run")
		return ctx.Err()
	}
}

// TriggerNow runs the pipeline immediately on the calling goroutine, subject
// to the same single-run guard as scheduled ticks
func (s *Service) TriggerNow() bool {
	return s.execute("manual")
}

// IsRunning reports whether the scheduler is ticking
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the scheduler status
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Schedule:     s.schedule,
		Running:      s.running,
		IsProcessing: s.active,
		LastRun:      s.lastRun,
		LastError:    s.lastErr,
		Skipped:      s.skipped,
	}
	if s.running {
		if entry := s.cron.Entry(s.entryID); entry.Schedule != nil {
			next := entry.Schedule.Next(time.Now())
			status.NextRun = &next
		}
	}
	return status
}

func (s *Service) runScheduledTask() {
	s.execute("cron")
}

// execute runs once unless a run is already active. It reports whether a
// run took place.
func (s *Service) execute(trigger string) (ran bool) {
	s.mu.Lock()
	if s.active {
		s.skipped++
		s.mu.Unlock()
		s.logger.Warn().Str("trigger", trigger).Msg("Previous run still active, skipping this cycle")
		return false
	}
	s.active = true
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	ran = true
	var runErr error

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in scheduled run")
		}

		s.mu.Lock()
		s.active = false
		s.lastRun = &started
		s.lastErr = ""
		if runErr != nil {
			s.lastErr = runErr.Error()
		}
		s.mu.Unlock()
	}()

	s.logger.Info().Str("trigger", trigger).Msg("Starting scheduled run")
	runErr = s.run(ctx)
	if runErr != nil {
		s.logger.Error().Err(runErr).Dur("elapsed", time.Since(started)).Msg("Scheduled run failed")
	} else {
		s.logger.Info().Dur("elapsed", time.Since(started)).Msg("Scheduled run completed")
	}
	return true
}
