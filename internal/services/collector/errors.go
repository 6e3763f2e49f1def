package collector

import (
	"errors"
	"fmt"

	"github.com/ternarybob/calbuddy/internal/models"
)

var (
	ErrSessionAcquisition = errors.New("session acquisition failed")
	ErrRecordLoad         = errors.New("record load failed")
	ErrNoWorkOrder        = errors.New("no fiber install work order")
	ErrNoActiveWorkOrder  = errors.New("no in-process fiber install work order")
	ErrExtraction         = errors.New("extraction failed")
	ErrWorkerAborted      = errors.New("worker aborted")

	// ErrNoWorkerStarted is returned by Scheduler.Run when every worker failed
	// to acquire a session
	ErrNoWorkerStarted = errors.New("no worker could acquire a session")
)

// JobError is a per-job failure. It unwraps to one of the sentinel errors above.
type JobError struct {
	Kind  models.FailureKind
	JobID string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func newJobError(kind models.FailureKind, jobID string, sentinel, cause error) *JobError {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %v", sentinel, cause)
	}
	return &JobError{Kind: kind, JobID: jobID, Err: err}
}

// toIncomplete converts any processing error into an IncompleteJob
func toIncomplete(job models.JobMetadata, err error) models.IncompleteJob {
	kind := models.FailureExtraction
	reason := err.Error()

	var jobErr *JobError
	if errors.As(err, &jobErr) {
		kind = jobErr.Kind
		reason = jobErr.Err.Error()
	}

	return models.IncompleteJob{
		JobMetadata:   job,
		FailureKind:   kind,
		FailureReason: reason,
	}
}
