package collector

import (
	"sync"
	"time"

	"github.com/ternarybob/calbuddy/internal/models"
)

// Rate is the throughput view of a run
type Rate struct {
	JobsPerSec float64
	SecPerJob  float64
	ETASeconds float64
}

// Report computes throughput for a run. SecPerJob is concurrency-adjusted:
// aggregate worker-seconds spent per finished job. All values are zero until
// at least one job has finished.
func Report(completed, total, workerCount int, elapsedSeconds float64) Rate {
	if completed <= 0 || elapsedSeconds <= 0 {
		return Rate{}
	}

	workers := float64(max(1, workerCount))
	secPerJob := elapsedSeconds * workers / float64(completed)
	remaining := max(0, total-completed)

	return Rate{
		JobsPerSec: float64(completed) / elapsedSeconds,
		SecPerJob:  secPerJob,
		ETASeconds: secPerJob * float64(remaining),
	}
}

// RunState is the shared state of one run. Workers mutate it only through
// Complete, which records the outcome and advances the counter under a single
// lock so every snapshot is consistent.
type RunState struct {
	mu         sync.Mutex
	runID      string
	total      int
	workers    int
	completed  int
	startedAt  time.Time
	results    []models.JobResult
	incomplete []models.IncompleteJob
	now        func() time.Time
}

// NewRunState creates the state for a run over total jobs
func NewRunState(runID string, total, workers int) *RunState {
	return &RunState{
		runID:   runID,
		total:   total,
		workers: workers,
		now:     time.Now,
	}
}

// MarkStarted records the start time on the first call only. Session
// acquisition happens before this, so login time is excluded from rates.
func (s *RunState) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		s.startedAt = s.now()
	}
}

// Complete records exactly one outcome for a job and returns the progress
// snapshot taken in the same critical section
func (s *RunState) Complete(result *models.JobResult, failure *models.IncompleteJob) models.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startedAt.IsZero() {
		s.startedAt = s.now()
	}

	s.completed++
	if result != nil {
		s.results = append(s.results, *result)
	} else if failure != nil {
		s.incomplete = append(s.incomplete, *failure)
	}

	return s.snapshotLocked()
}

// Snapshot returns the current progress
func (s *RunState) Snapshot() models.ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *RunState) snapshotLocked() models.ProgressSnapshot {
	var elapsed time.Duration
	if !s.startedAt.IsZero() {
		elapsed = s.now().Sub(s.startedAt)
	}
	rate := Report(s.completed, s.total, s.workers, elapsed.Seconds())

	return models.ProgressSnapshot{
		RunID:      s.runID,
		Completed:  s.completed,
		Total:      s.total,
		Workers:    s.workers,
		Elapsed:    elapsed,
		JobsPerSec: rate.JobsPerSec,
		SecPerJob:  rate.SecPerJob,
		ETASeconds: rate.ETASeconds,
	}
}

// Results returns copies of the collected results and failures
func (s *RunState) Results() ([]models.JobResult, []models.IncompleteJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JobResult(nil), s.results...), append([]models.IncompleteJob(nil), s.incomplete...)
}

// StartedAt returns the time the first job began, or zero
func (s *RunState) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}
