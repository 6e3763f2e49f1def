package models

import "time"

// RunMode selects the calendar range a run covers
type RunMode string

const (
	RunModeDay  RunMode = "day"
	RunModeWeek RunMode = "week"
)

// RunStats summarizes a finished collection run
type RunStats struct {
	Mode       RunMode       `json:"mode"`
	Workers    int           `json:"workers"`
	Total      int           `json:"total"`
	Collected  int           `json:"collected"`
	Failed     int           `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	SecPerJob  float64       `json:"sec_per_job"`
	Host       string        `json:"host"`
}

// RunRecord is a persisted run, used as the baseline for the next diff
type RunRecord struct {
	ID           string          `json:"id"`
	Mode         RunMode         `json:"mode"`
	RangeStart   time.Time       `json:"range_start"`
	RangeEnd     time.Time       `json:"range_end"`
	Tag          string          `json:"tag"`
	StartedAt    time.Time       `json:"started_at" badgerhold:"index"`
	Stats        RunStats        `json:"stats"`
	Results      []JobResult     `json:"results"`
	Incomplete   []IncompleteJob `json:"incomplete"`
	AddedCount   int             `json:"added_count"`
	RemovedCount int             `json:"removed_count"`
	MovedCount   int             `json:"moved_count"`
}
