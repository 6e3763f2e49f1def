package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/common"
	"github.com/ternarybob/calbuddy/internal/handlers"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"github.com/ternarybob/calbuddy/internal/services/browser"
	"github.com/ternarybob/calbuddy/internal/services/calendar"
	"github.com/ternarybob/calbuddy/internal/services/collector"
	"github.com/ternarybob/calbuddy/internal/services/events"
	"github.com/ternarybob/calbuddy/internal/services/export"
	"github.com/ternarybob/calbuddy/internal/services/mailer"
	"github.com/ternarybob/calbuddy/internal/services/scheduler"
	"github.com/ternarybob/calbuddy/internal/storage"
)

// Options toggles optional sinks when building the App
type Options struct {
	ProgressBar bool
}

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	// Browser sessions
	Backend  browser.Backend
	Provider interfaces.SessionProvider

	// Pipeline services
	Scanner   *calendar.Scanner
	Processor collector.JobProcessor
	Scheduler *collector.Scheduler
	Exporter  *export.Exporter
	Mailer    *mailer.Service

	// Progress sinks
	ProgressBar *events.ProgressBar

	// Schedule mode
	SchedulerService *scheduler.Service

	// HTTP handlers
	ProgressHandler  *handlers.ProgressHandler
	RunsHandler      *handlers.RunsHandler
	SchedulerHandler *handlers.SchedulerHandler

	now func() time.Time
}

// New initializes storage, the browser back end and every pipeline service
func New(cfg *common.Config, logger arbor.ILogger, opts Options) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to subscribe logger: %w", err)
	}

	if opts.ProgressBar || cfg.Progress.Bar {
		app.ProgressBar = events.NewProgressBar(nil)
		if err := app.ProgressBar.Subscribe(app.EventService); err != nil {
			app.Close()
			return nil, err
		}
	}

	if err := app.initBrowser(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	app.initServices()

	if err := app.initHandlers(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().
		Str("backend", cfg.Browser.Backend).
		Int("workers", cfg.Collector.Workers).
		Bool("email", app.Mailer.IsConfigured()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initBrowser builds the configured session back end and the provider that
// authenticates each worker's session
func (a *App) initBrowser() error {
	cfg := a.Config
	pageTimeout := common.ParseDurationOr(cfg.Browser.PageTimeout, 30*time.Second)
	pacer := browser.NewPacer(cfg.Pacing.RequestsPerSecond, cfg.Pacing.Burst)

	switch cfg.Browser.Backend {
	case "http":
		a.Backend = browser.NewHTTPBackend(browser.HTTPConfig{
			UserAgent:            cfg.Browser.UserAgent,
			PageTimeout:          pageTimeout,
			PollInterval:         common.ParseDurationOr(cfg.Browser.PollInterval, 250*time.Millisecond),
			TransientStatusCodes: cfg.Collector.TransientStatusCode,
		}, pacer, a.Logger)
	default:
		pool := browser.NewChromeDPPool(browser.ChromeDPConfig{
			Headless:             cfg.Browser.Headless,
			UserAgent:            cfg.Browser.UserAgent,
			NoSandbox:            true,
			StartupTimeout:       common.ParseDurationOr(cfg.Browser.StartupTimeout, 20*time.Second),
			PageTimeout:          pageTimeout,
			TransientStatusCodes: cfg.Collector.TransientStatusCode,
		}, pacer, a.Logger)
		if err := pool.Init(); err != nil {
			return err
		}
		a.Backend = pool
	}

	auth := browser.NewAuthenticator(browser.AuthConfig{
		BaseURL:      cfg.Site.BaseURL,
		LoginURL:     cfg.Site.SiteURL(cfg.Site.LoginPath),
		Username:     cfg.Credentials.Username,
		Password:     cfg.Credentials.Password,
		LoginTimeout: pageTimeout,
	}, a.StorageManager.SessionStorage(), a.Logger)

	a.Provider = browser.NewProvider(a.Backend, auth, a.publishSignal, a.Logger)

	a.Logger.Debug().
		Str("backend", cfg.Browser.Backend).
		Bool("pacing", pacer.Enabled()).
		Msg("Browser back end initialized")

	return nil
}

// publishSignal forwards transient responses to the event bus
func (a *App) publishSignal(signal models.TransientSignal) {
	event := interfaces.Event{Type: interfaces.EventTransientSignal, Payload: signal}
	if err := a.EventService.Publish(context.Background(), event); err != nil {
		a.Logger.Debug().Err(err).Msg("Failed to publish transient signal")
	}
}

// initServices initializes the pipeline services in dependency order
func (a *App) initServices() {
	cfg := a.Config

	a.Scanner = calendar.NewScanner(calendar.ScannerConfig{
		CalendarURL:   cfg.Site.SiteURL(cfg.Site.CalendarPath),
		InstallMarker: cfg.Site.InstallMarker,
		LoadTimeout:   common.ParseDurationOr(cfg.Browser.PageTimeout, 20*time.Second),
		SettleDelay:   common.ParseDurationOr(cfg.Browser.SettleDelay, time.Second),
	}, a.Logger)

	a.Processor = collector.NewRecordProcessor(collector.ProcessorConfig{
		RecordURL: cfg.Site.CustomerURL,
		RecordRetry: collector.RetryPolicy{
			MaxAttempts: cfg.Collector.RecordAttempts,
			Delay:       time.Second,
		},
		RecordTimeout:   common.ParseDurationOr(cfg.Collector.RecordTimeout, 5*time.Second),
		LookupAttempts:  cfg.Collector.LookupAttempts,
		LookupDelay:     common.ParseDurationOr(cfg.Collector.LookupDelay, time.Second),
		LookupTimeout:   common.ParseDurationOr(cfg.Collector.LookupTimeout, 5*time.Second),
		AssigneeTimeout: common.ParseDurationOr(cfg.Collector.AssigneeTimeout, 15*time.Second),
		DateTimeout:     common.ParseDurationOr(cfg.Collector.DateTimeout, 8*time.Second),
		PollInterval:    common.ParseDurationOr(cfg.Browser.PollInterval, 250*time.Millisecond),
		Criteria: collector.WorkOrderCriteria{
			TypeKeywords: cfg.Collector.WorkOrderKeywords,
			ActiveStatus: cfg.Collector.ActiveStatus,
		},
	}, a.Logger)

	a.Scheduler = collector.NewScheduler(a.Provider, a.Processor, a.EventService, a.Logger)
	a.Exporter = export.NewExporter(cfg.Output.Dir, cfg.Output.ChangesDir, cfg.Output.PDF, a.Logger)
	a.Mailer = mailer.NewService(cfg.Email, a.Logger)
}

// initHandlers builds the HTTP handlers served when [progress] listen_addr is set
func (a *App) initHandlers() error {
	var err error
	a.ProgressHandler, err = handlers.NewProgressHandler(a.EventService, a.Logger, a.Config.Progress.MaxPerSecond)
	if err != nil {
		return err
	}
	a.RunsHandler = handlers.NewRunsHandler(a.StorageManager.RunStorage(), a.Logger)
	return nil
}

// EnableSchedule creates the cron service around the run pipeline. It must be
// called before the HTTP server is built for the schedule routes to exist.
func (a *App) EnableSchedule(req RunRequest) *scheduler.Service {
	a.SchedulerService = scheduler.NewService(func(ctx context.Context) error {
		scheduled := req
		scheduled.Day = time.Time{}
		_, err := a.Execute(ctx, scheduled)
		return err
	}, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
	return a.SchedulerService
}

// Close releases every resource in reverse dependency order
func (a *App) Close() error {
	if a.SchedulerService != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := a.SchedulerService.Stop(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
		cancel()
	}

	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close browser back end")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}

	return nil
}
