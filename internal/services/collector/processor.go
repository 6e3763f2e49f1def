package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/ternarybob/calbuddy/internal/services/browser"
)

// JobProcessor turns one JobMetadata into a JobResult using a session the
// caller owns. Failures are returned as *JobError.
type JobProcessor interface {
	Process(ctx context.Context, session interfaces.BrowserSession, job models.JobMetadata) (*models.JobResult, error)
}

// ProcessorConfig tunes the per-job state machine
type ProcessorConfig struct {
	RecordURL       func(id string) string
	RecordRetry     RetryPolicy
	RecordTimeout   time.Duration
	LookupAttempts  int
	LookupDelay     time.Duration
	LookupTimeout   time.Duration
	AssigneeTimeout time.Duration
	DateTimeout     time.Duration
	PollInterval    time.Duration
	Criteria        WorkOrderCriteria
}

// RecordProcessor walks a customer record: open record, locate the active
// work order, classify, then read assignee and install date
type RecordProcessor struct {
	config ProcessorConfig
	logger arbor.ILogger
}

// NewRecordProcessor creates a RecordProcessor, filling unset timings with defaults
func NewRecordProcessor(config ProcessorConfig, logger arbor.ILogger) *RecordProcessor {
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = 5 * time.Second
	}
	if config.LookupAttempts <= 0 {
		config.LookupAttempts = 3
	}
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 5 * time.Second
	}
	if config.AssigneeTimeout <= 0 {
		config.AssigneeTimeout = 15 * time.Second
	}
	if config.DateTimeout <= 0 {
		config.DateTimeout = 8 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 250 * time.Millisecond
	}
	return &RecordProcessor{config: config, logger: logger}
}

// Process runs the state machine for one job
func (p *RecordProcessor) Process(ctx context.Context, session interfaces.BrowserSession, job models.JobMetadata) (*models.JobResult, error) {
	if err := p.openRecord(ctx, session, job.ID); err != nil {
		if ctx.Err() != nil {
			return nil, newJobError(models.FailureWorkerAborted, job.ID, ErrWorkerAborted, ctx.Err())
		}
		return nil, newJobError(models.FailureRecordLoad, job.ID, ErrRecordLoad, err)
	}

	lookup, err := p.locateWorkOrder(ctx, session)
	if err != nil {
		return nil, newJobError(models.FailureWorkerAborted, job.ID, ErrWorkerAborted, err)
	}
	if !lookup.Found() {
		kind, sentinel := lookupError(lookup)
		return nil, newJobError(kind, job.ID, sentinel, nil)
	}

	return p.extract(ctx, session, job, lookup)
}

// openRecord loads the customer record and steps into its main frame
func (p *RecordProcessor) openRecord(ctx context.Context, session interfaces.BrowserSession, id string) error {
	return p.config.RecordRetry.Execute(ctx, p.logger, "open_record", func(attempt int) error {
		if err := session.Navigate(ctx, p.config.RecordURL(id)); err != nil {
			return err
		}
		if err := browser.DismissOverlays(ctx, session); err != nil {
			return err
		}
		if err := session.WaitFor(ctx, browser.MainFrameSelector, p.config.RecordTimeout); err != nil {
			return fmt.Errorf("record frame: %w", err)
		}

		src, found, err := session.Attribute(ctx, browser.MainFrameSelector, "src")
		if err != nil {
			return err
		}
		if !found || src == "" {
			return fmt.Errorf("record frame has no source")
		}

		current, err := session.CurrentURL(ctx)
		if err != nil {
			return err
		}
		frameURL, err := resolveURL(current, src)
		if err != nil {
			return err
		}
		return session.Navigate(ctx, frameURL)
	})
}

// locateWorkOrder searches the listing, retrying while it is still empty.
// The whole search is bounded by LookupTimeout; running out of time is
// reported as an absent work order. The error is only set when ctx ends.
func (p *RecordProcessor) locateWorkOrder(ctx context.Context, session interfaces.BrowserSession) (models.WorkOrderLookup, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, p.config.LookupTimeout)
	defer cancel()

	lookup := models.WorkOrderLookup{Kind: models.LookupAbsent}
	for attempt := 1; attempt <= p.config.LookupAttempts; attempt++ {
		rows, err := p.readWorkOrders(lookupCtx, session)
		if err == nil {
			lookup = SelectWorkOrder(rows, p.config.Criteria)
			if lookup.Kind != models.LookupAbsent {
				break
			}
		} else {
			p.logger.Debug().Int("attempt", attempt).Err(err).Msg("Work order listing not ready")
		}

		if ctx.Err() != nil {
			return lookup, ctx.Err()
		}
		if attempt == p.config.LookupAttempts || sleepCtx(lookupCtx, p.config.LookupDelay) != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return lookup, ctx.Err()
	}

	if lookup.Found() && lookup.URL != "" {
		current, err := session.CurrentURL(ctx)
		if err == nil {
			if resolved, err := resolveURL(current, lookup.URL); err == nil {
				lookup.URL = resolved
			}
		}
	}
	return lookup, nil
}

func (p *RecordProcessor) readWorkOrders(ctx context.Context, session interfaces.BrowserSession) ([]models.WorkOrderRow, error) {
	timeout := p.config.LookupTimeout / time.Duration(p.config.LookupAttempts)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	if err := session.WaitFor(ctx, workOrderTableSelector, timeout); err != nil {
		return nil, err
	}

	html, found, err := session.HTML(ctx, workOrderTableSelector)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("work order table disappeared")
	}
	return ParseWorkOrderRows(html)
}

// extract covers classification, assignee and date. Any error or panic is
// converted into an extraction failure for this job only.
func (p *RecordProcessor) extract(ctx context.Context, session interfaces.BrowserSession, job models.JobMetadata, lookup models.WorkOrderLookup) (result *models.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Recovered from panic during extraction")
			result = nil
			err = newJobError(models.FailureExtraction, job.ID, ErrExtraction, fmt.Errorf("panic: %v", r))
		}
	}()

	fail := func(cause error) (*models.JobResult, error) {
		if ctx.Err() != nil {
			return nil, newJobError(models.FailureWorkerAborted, job.ID, ErrWorkerAborted, ctx.Err())
		}
		return nil, newJobError(models.FailureExtraction, job.ID, ErrExtraction, cause)
	}

	if lookup.URL == "" {
		return fail(fmt.Errorf("work order %d has no link", lookup.Number))
	}
	if err := session.Navigate(ctx, lookup.URL); err != nil {
		return fail(err)
	}

	pageHTML, found, err := session.HTML(ctx, "body")
	if err != nil {
		return fail(err)
	}
	if !found {
		return fail(fmt.Errorf("work order %d page is empty", lookup.Number))
	}
	details, err := ParseJobDetails(pageHTML)
	if err != nil {
		return fail(err)
	}

	assignee, err := p.extractAssignee(ctx, session)
	if err != nil {
		return fail(err)
	}

	date, err := p.extractDate(ctx, session)
	if err != nil {
		return fail(err)
	}

	return &models.JobResult{
		Assignee:        assignee,
		Date:            date,
		TimeSlot:        job.TimeSlot,
		DisplayName:     job.DisplayName,
		ID:              job.ID,
		Category:        Classify(details),
		Address:         details.Address,
		WorkOrderNumber: lookup.Number,
	}, nil
}

// extractAssignee waits a bounded time for the contractor list. A list that
// never appears means Unknown, not a failure.
func (p *RecordProcessor) extractAssignee(ctx context.Context, session interfaces.BrowserSession) (string, error) {
	if err := session.WaitFor(ctx, contractorSelector, p.config.AssigneeTimeout); err != nil {
		if errors.Is(err, interfaces.ErrWaitTimeout) {
			return models.UnknownValue, nil
		}
		return "", err
	}

	html, found, err := session.HTML(ctx, contractorSelector)
	if err != nil {
		return "", err
	}
	if !found {
		return models.UnknownValue, nil
	}

	labels, err := contractorLabels(html)
	if err != nil {
		return "", err
	}
	return ParseAssignee(labels), nil
}

// extractDate polls the scheduled-event list until it has loaded or
// DateTimeout passes, then parses whatever it holds
func (p *RecordProcessor) extractDate(ctx context.Context, session interfaces.BrowserSession) (string, error) {
	if err := session.WaitFor(ctx, scheduledEventSelector, p.config.DateTimeout); err != nil {
		if errors.Is(err, interfaces.ErrWaitTimeout) {
			return models.UnknownValue, nil
		}
		return "", err
	}

	deadline := time.Now().Add(p.config.DateTimeout)
	var html string
	for {
		var found bool
		var err error
		html, found, err = session.HTML(ctx, scheduledEventSelector)
		if err != nil {
			return "", err
		}
		if found && eventListReady(html) {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		if err := sleepCtx(ctx, p.config.PollInterval); err != nil {
			return "", err
		}
	}

	lines, err := eventListLines(html)
	if err != nil {
		return "", err
	}
	return ParseScheduledDate(lines), nil
}
