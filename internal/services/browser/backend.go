package browser

import (
	"context"
	"time"

	"github.com/ternarybob/calbuddy/internal/interfaces"
)

// SessionOptions configures a single worker session
type SessionOptions struct {
	WorkerID          int
	OnTransientSignal interfaces.TransientSignalHandler
}

// Backend creates isolated browser sessions. Each session has its own cookie
// store so workers never share login state at runtime.
type Backend interface {
	NewSession(ctx context.Context, opts SessionOptions) (interfaces.BrowserSession, error)
	Close() error
}

// withOpTimeout derives an operation context from the session context that is
// also cancelled when the caller's context ends.
func withOpTimeout(sessionCtx, callerCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(sessionCtx, timeout)
	stop := context.AfterFunc(callerCtx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}
