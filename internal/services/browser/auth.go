package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

const (
	loginMarker         = "login.php"
	usernameSelector    = "input[name='username']"
	passwordSelector    = "input[name='password']"
	loginButtonSelector = "#login"

	// MainFrameSelector is the frame that hosts every record view once logged in
	MainFrameSelector = "iframe#MainView"
)

// overlaySelectors are first-visit notices that cover the page until closed
var overlaySelectors = []string{
	`input#valueForm1[type="button"][value="Close This"]`,
	`input#f1[type="button"][value="Close This"]`,
}

// ErrMissingCredentials is returned when the stored session is stale and no
// username/password is configured
var ErrMissingCredentials = errors.New("session expired and no credentials configured")

// AuthConfig describes how to reach and log in to the remote site
type AuthConfig struct {
	BaseURL      string
	LoginURL     string
	Username     string
	Password     string
	LoginTimeout time.Duration
}

// Authenticator logs sessions in, preferring the persisted cookie snapshot
type Authenticator struct {
	config AuthConfig
	store  interfaces.SessionStateStorage
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewAuthenticator creates an Authenticator. store may be nil, in which case
// every session logs in with credentials.
func NewAuthenticator(config AuthConfig, store interfaces.SessionStateStorage, logger arbor.ILogger) *Authenticator {
	if config.LoginTimeout <= 0 {
		config.LoginTimeout = 10 * time.Second
	}
	return &Authenticator{
		config: config,
		store:  store,
		logger: logger,
	}
}

// Authenticate leaves session logged in on the site's landing page
func (a *Authenticator) Authenticate(ctx context.Context, session interfaces.BrowserSession) error {
	restored := a.restore(ctx, session)

	if err := session.Navigate(ctx, a.config.BaseURL); err != nil {
		return fmt.Errorf("failed to open site: %w", err)
	}

	current, err := session.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read location: %w", err)
	}
	if !strings.Contains(current, loginMarker) {
		a.logger.Debug().Bool("restored", restored).Msg("Session valid without login")
		return DismissOverlays(ctx, session)
	}

	if a.config.Username == "" || a.config.Password == "" {
		return ErrMissingCredentials
	}

	if err := a.login(ctx, session); err != nil {
		return err
	}
	if err := DismissOverlays(ctx, session); err != nil {
		return err
	}

	a.persist(ctx, session)
	a.logger.Info().Msg("Logged in with credentials")
	return nil
}

func (a *Authenticator) login(ctx context.Context, session interfaces.BrowserSession) error {
	if err := session.Navigate(ctx, a.config.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := session.Fill(ctx, usernameSelector, a.config.Username); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := session.Fill(ctx, passwordSelector, a.config.Password); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := session.Click(ctx, loginButtonSelector); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := session.WaitFor(ctx, MainFrameSelector, a.config.LoginTimeout); err != nil {
		return fmt.Errorf("login rejected: %w", err)
	}
	return nil
}

func (a *Authenticator) restore(ctx context.Context, session interfaces.BrowserSession) bool {
	if a.store == nil {
		return false
	}

	state, err := a.store.LoadSessionState(ctx)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			a.logger.Warn().Err(err).Msg("Failed to load stored session")
		}
		return false
	}

	if err := session.SetCookies(ctx, state.Cookies); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to restore stored session")
		return false
	}
	return true
}

func (a *Authenticator) persist(ctx context.Context, session interfaces.BrowserSession) {
	if a.store == nil {
		return
	}

	cookies, err := session.Cookies(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Failed to read session cookies")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.store.SaveSessionState(ctx, &models.SessionState{
		Cookies: cookies,
		SavedAt: time.Now(),
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to persist session")
	}
}

// DismissOverlays closes any first-visit notices on the current page
func DismissOverlays(ctx context.Context, session interfaces.BrowserSession) error {
	for _, selector := range overlaySelectors {
		present, err := session.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		if err := session.Click(ctx, selector); err != nil {
			return err
		}
	}
	return nil
}
