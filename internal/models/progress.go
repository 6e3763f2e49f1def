package models

import "time"

// ProgressSnapshot is a point-in-time view of a running collection
type ProgressSnapshot struct {
	RunID      string        `json:"run_id"`
	Completed  int           `json:"completed"`
	Total      int           `json:"total"`
	Workers    int           `json:"workers"`
	Elapsed    time.Duration `json:"elapsed"`
	JobsPerSec float64       `json:"jobs_per_sec"`
	SecPerJob  float64       `json:"sec_per_job"`
	ETASeconds float64       `json:"eta_seconds"`
}

// Percent returns completion as 0-100
func (p ProgressSnapshot) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// TransientSignal records a throttling or refusal response seen by a session
type TransientSignal struct {
	WorkerID int               `json:"worker_id"`
	Status   int               `json:"status"`
	URL      string            `json:"url"`
	Headers  map[string]string `json:"headers"`
	SeenAt   time.Time         `json:"seen_at"`
}

// JobOutcome is published once per finished job
type JobOutcome struct {
	WorkerID int            `json:"worker_id"`
	Job      JobMetadata    `json:"job"`
	Result   *JobResult     `json:"result,omitempty"`
	Failure  *IncompleteJob `json:"failure,omitempty"`
}
