package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel values a JobResult may legitimately carry
const (
	UnknownValue = "Unknown"
	NoneAssigned = "None Assigned"
)

// JobMetadata identifies one scheduled install as read from the calendar.
// ID is the customer identifier and is the join key across runs.
type JobMetadata struct {
	ID          string    `json:"id" yaml:"id"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	TimeSlot    string    `json:"time_slot" yaml:"time_slot"`
	ScrapeDate  time.Time `json:"scrape_date" yaml:"scrape_date"`
}

// JobResult is the fully extracted record for one job
type JobResult struct {
	Assignee        string `json:"assignee"`
	Date            string `json:"date"` // M-D-YY or Unknown
	TimeSlot        string `json:"time_slot"`
	DisplayName     string `json:"display_name"`
	ID              string `json:"id"`
	Category        string `json:"category"`
	Address         string `json:"address"`
	WorkOrderNumber int    `json:"work_order_number"`
}

// Key returns the composite identity used by the reconciliation engine
func (r JobResult) Key() string {
	return r.ID + "|" + r.TimeSlot
}

// Line renders the job the way it appears in exported job lists
func (r JobResult) Line() string {
	return fmt.Sprintf("%s - %s - %s - %s - %s - WO %d",
		r.TimeSlot, r.DisplayName, r.ID, r.Category, r.Address, r.WorkOrderNumber)
}

// SlotOrder ranks an h:mm time slot within a working day. Slots are written
// without am/pm, so hours 1 to 5 are afternoon. Unparseable slots sort last.
func SlotOrder(timeSlot string) int {
	hour, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(timeSlot, ":", 2)[0]))
	if err != nil {
		return 99
	}
	if hour >= 1 && hour <= 5 {
		hour += 12
	}
	return hour
}

// DateLayout is the m-d-yy form job dates are written in
const DateLayout = "1-2-06"

// DateLess orders job dates chronologically. Unknown and unparseable dates
// sort after every real date.
func DateLess(a, b string) bool {
	ta, errA := time.Parse(DateLayout, strings.TrimSpace(a))
	tb, errB := time.Parse(DateLayout, strings.TrimSpace(b))
	switch {
	case errA == nil && errB == nil:
		return ta.Before(tb)
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// FailureKind classifies why a job ended up incomplete
type FailureKind string

const (
	FailureSessionAcquisition FailureKind = "session_acquisition"
	FailureRecordLoad         FailureKind = "record_load"
	FailureNoWorkOrder        FailureKind = "no_work_order"
	FailureNoActiveWorkOrder  FailureKind = "no_active_work_order"
	FailureExtraction         FailureKind = "extraction"
	FailureWorkerAborted      FailureKind = "worker_aborted"
)

// IncompleteJob is a job that could not be fully processed
type IncompleteJob struct {
	JobMetadata
	FailureKind   FailureKind `json:"failure_kind"`
	FailureReason string      `json:"failure_reason"`
}

// Batch is a contiguous slice of jobs owned by a single worker
type Batch struct {
	Index int
	Jobs  []JobMetadata
}
