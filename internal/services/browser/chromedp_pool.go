package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
)

// ChromeDPConfig holds configuration for the headless browser back end
type ChromeDPConfig struct {
	Headless             bool
	UserAgent            string
	NoSandbox            bool
	StartupTimeout       time.Duration
	PageTimeout          time.Duration
	TransientStatusCodes []int
}

// ChromeDPPool owns one Chrome process and hands out isolated browser
// contexts, one per worker session.
type ChromeDPPool struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	config        ChromeDPConfig
	transient     transientStatuses
	pacer         *Pacer
	logger        arbor.ILogger
	mu            sync.Mutex
	initialized   bool
	sessions      int
}

// NewChromeDPPool creates a new pool; Init must be called before NewSession
func NewChromeDPPool(config ChromeDPConfig, pacer *Pacer, logger arbor.ILogger) *ChromeDPPool {
	if config.StartupTimeout <= 0 {
		config.StartupTimeout = 20 * time.Second
	}
	if config.PageTimeout <= 0 {
		config.PageTimeout = 30 * time.Second
	}
	return &ChromeDPPool{
		config:    config,
		transient: newTransientStatuses(config.TransientStatusCodes),
		pacer:     pacer,
		logger:    logger,
	}
}

// Init launches the browser and runs a startup test
func (p *ChromeDPPool) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return fmt.Errorf("browser pool already initialized")
	}

	startTime := time.Now()

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.WindowSize(1280, 900),
	)
	if p.config.UserAgent != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserAgent(p.config.UserAgent))
	}

	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocCtx)

	// The first Run allocates the browser and must not carry a timeout,
	// otherwise the browser dies with the timeout context.
	if err := chromedp.Run(p.browserCtx); err != nil {
		p.cleanup()
		return fmt.Errorf("failed to start browser: %w", err)
	}

	testCtx, testCancel := context.WithTimeout(p.browserCtx, p.config.StartupTimeout)
	defer testCancel()

	var title string
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank"), chromedp.Title(&title)); err != nil {
		p.cleanup()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	p.initialized = true
	p.logger.Info().
		Bool("headless", p.config.Headless).
		Dur("startup_time", time.Since(startTime)).
		Msg("ChromeDP browser started")

	return nil
}

// NewSession opens an isolated browser context for one worker
func (p *ChromeDPPool) NewSession(ctx context.Context, opts SessionOptions) (interfaces.BrowserSession, error) {
	p.mu.Lock()
	if !p.initialized {
		p.mu.Unlock()
		return nil, fmt.Errorf("browser pool not initialized")
	}
	browserCtx := p.browserCtx
	p.sessions++
	p.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())

	session := newChromeDPSession(tabCtx, tabCancel, opts, p.config.PageTimeout, p.transient, p.pacer, p.logger)
	session.listen()

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open browser context for worker %d: %w", opts.WorkerID, err)
	}

	p.logger.Debug().
		Int("worker", opts.WorkerID).
		Msg("Browser context opened")

	return session, nil
}

// Close shuts the browser down, waiting a bounded time for Chrome to exit
func (p *ChromeDPPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.cleanup()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		p.logger.Warn().Msg("Browser shutdown timed out")
	}

	p.initialized = false
	p.logger.Info().
		Int("sessions_opened", p.sessions).
		Msg("ChromeDP browser shut down")
	return nil
}

func (p *ChromeDPPool) cleanup() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
}
