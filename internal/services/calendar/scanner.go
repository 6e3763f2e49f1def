package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

const (
	headerSelector     = ".fc-center h2"
	weekButtonSelector = "button.fc-agendaWeek-button"
	dayButtonSelector  = "button.fc-agendaDay-button"
	nextButtonSelector = "button.fc-next-button"
	prevButtonSelector = "button.fc-prev-button"

	// maxNavigation bounds prev/next clicks while aligning the calendar
	maxNavigation = 15
)

// ErrNotAuthenticated is returned when the calendar redirects to the login page
var ErrNotAuthenticated = errors.New("calendar session is not authenticated")

// ScanOptions selects the calendar range to read
type ScanOptions struct {
	Mode        models.RunMode
	SelectedDay time.Time // zero keeps whatever the calendar opens on
	TestMode    bool
	TestLimit   int
}

// ScannerConfig configures a Scanner
type ScannerConfig struct {
	CalendarURL   string
	InstallMarker string
	LoadTimeout   time.Duration
	SettleDelay   time.Duration
}

// Scanner reads job metadata off the calendar view
type Scanner struct {
	config ScannerConfig
	logger arbor.ILogger
	now    func() time.Time
}

// NewScanner creates a Scanner
func NewScanner(config ScannerConfig, logger arbor.ILogger) *Scanner {
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 20 * time.Second
	}
	return &Scanner{
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Scan opens the calendar, aligns it to the requested range and returns the
// install jobs it shows, in calendar order
func (s *Scanner) Scan(ctx context.Context, session interfaces.BrowserSession, opts ScanOptions) ([]models.JobMetadata, error) {
	if err := session.Navigate(ctx, s.config.CalendarURL); err != nil {
		return nil, fmt.Errorf("failed to open calendar: %w", err)
	}
	if current, err := session.CurrentURL(ctx); err == nil && strings.Contains(current, "login.php") {
		return nil, ErrNotAuthenticated
	}

	s.switchView(ctx, session, opts.Mode)

	if !opts.SelectedDay.IsZero() {
		if err := s.align(ctx, session, opts); err != nil {
			return nil, err
		}
	}

	if err := session.WaitFor(ctx, eventSelector, s.config.LoadTimeout); err != nil {
		if errors.Is(err, interfaces.ErrWaitTimeout) {
			s.logger.Warn().
				Str("marker", s.config.InstallMarker).
				Msg("No calendar events detected")
			return nil, nil
		}
		return nil, fmt.Errorf("failed waiting for calendar events: %w", err)
	}

	page, _, err := session.HTML(ctx, "body")
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}

	jobs, err := ParseEvents(page, s.config.InstallMarker, s.now())
	if err != nil {
		return nil, err
	}

	if opts.TestMode && opts.TestLimit > 0 && len(jobs) > opts.TestLimit {
		s.logger.Info().Int("limit", opts.TestLimit).Msg("Test mode: job limit reached")
		jobs = jobs[:opts.TestLimit]
	}

	for i, job := range jobs {
		s.logger.Debug().
			Int("index", i+1).
			Str("job_id", job.ID).
			Str("time", job.TimeSlot).
			Msg("Job queued")
	}
	s.logger.Info().Int("jobs", len(jobs)).Msg("Calendar scan complete")

	return jobs, nil
}

func (s *Scanner) switchView(ctx context.Context, session interfaces.BrowserSession, mode models.RunMode) {
	selector := dayButtonSelector
	if mode == models.RunModeWeek {
		selector = weekButtonSelector
	}
	if err := session.Click(ctx, selector); err != nil {
		s.logger.Warn().Str("mode", string(mode)).Err(err).Msg("Could not switch calendar view")
		return
	}
	s.settle(ctx)
}

// align clicks prev/next until the header shows the target day, giving up
// after maxNavigation clicks
func (s *Scanner) align(ctx context.Context, session interfaces.BrowserSession, opts ScanOptions) error {
	day := opts.SelectedDay
	target := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if opts.Mode == models.RunModeWeek {
		target = target.AddDate(0, 0, -int(target.Weekday()))
	}

	current, ok := s.shownDate(ctx, session)
	tries := 0
	for ok && !current.Equal(target) && tries < maxNavigation {
		button := nextButtonSelector
		if current.After(target) {
			button = prevButtonSelector
		}
		if err := session.Click(ctx, button); err != nil {
			return fmt.Errorf("failed to navigate calendar: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.settle(ctx)
		current, ok = s.shownDate(ctx, session)
		tries++
	}

	if ok && current.Equal(target) {
		s.logger.Info().Str("date", target.Format("2006-01-02")).Msg("Calendar aligned")
	} else {
		s.logger.Warn().
			Str("target", target.Format("2006-01-02")).
			Int("tries", tries).
			Msg("Could not align calendar")
	}
	return nil
}

func (s *Scanner) shownDate(ctx context.Context, session interfaces.BrowserSession) (time.Time, bool) {
	header, found, err := session.Text(ctx, headerSelector)
	if err != nil || !found {
		return time.Time{}, false
	}
	date, err := ParseHeaderDate(header, s.now().Year())
	if err != nil {
		s.logger.Debug().Str("header", header).Err(err).Msg("Unreadable calendar header")
		return time.Time{}, false
	}
	return date, true
}

func (s *Scanner) settle(ctx context.Context) {
	if s.config.SettleDelay <= 0 {
		return
	}
	timer := time.NewTimer(s.config.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
