package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/calbuddy/internal/models"
)

// ErrWaitTimeout is returned by WaitFor when the selector never appears
var ErrWaitTimeout = errors.New("timed out waiting for selector")

// TransientSignalHandler receives responses that indicate the remote system is
// throttling or refusing the session (429, 403, 503).
type TransientSignalHandler func(status int, url string, headers map[string]string)

// BrowserSession is one authenticated browser bound to one worker.
// Query style methods return found=false rather than an error when the
// selector does not match; errors are reserved for session failures.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// Exists reports whether the selector currently matches an element
	Exists(ctx context.Context, selector string) (bool, error)
	// Text returns the visible text of the first match
	Text(ctx context.Context, selector string) (string, bool, error)
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	// HTML returns the outer HTML of the first match
	HTML(ctx context.Context, selector string) (string, bool, error)

	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error

	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// SessionProvider hands out authenticated sessions, one per worker
type SessionProvider interface {
	Acquire(ctx context.Context, workerID int) (BrowserSession, error)
}
