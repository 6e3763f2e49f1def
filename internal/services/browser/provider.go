package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
)

// SignalSink receives transient signals from every session
type SignalSink func(signal models.TransientSignal)

// Provider implements interfaces.SessionProvider: a fresh back-end session,
// authenticated before it is handed to a worker
type Provider struct {
	backend Backend
	auth    *Authenticator
	sink    SignalSink
	logger  arbor.ILogger
}

// NewProvider creates a session provider. sink may be nil.
func NewProvider(backend Backend, auth *Authenticator, sink SignalSink, logger arbor.ILogger) *Provider {
	return &Provider{
		backend: backend,
		auth:    auth,
		sink:    sink,
		logger:  logger,
	}
}

// Acquire opens and authenticates a session for workerID. The caller owns the
// returned session and must Close it.
func (p *Provider) Acquire(ctx context.Context, workerID int) (interfaces.BrowserSession, error) {
	started := time.Now()

	session, err := p.backend.NewSession(ctx, SessionOptions{
		WorkerID:          workerID,
		OnTransientSignal: p.signalHandler(workerID),
	})
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	if err := p.auth.Authenticate(ctx, session); err != nil {
		session.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	p.logger.Debug().
		Int("worker", workerID).
		Dur("elapsed", time.Since(started)).
		Msg("Session acquired")

	return session, nil
}

func (p *Provider) signalHandler(workerID int) interfaces.TransientSignalHandler {
	return func(status int, url string, headers map[string]string) {
		signal := models.TransientSignal{
			WorkerID: workerID,
			Status:   status,
			URL:      url,
			Headers:  headers,
			SeenAt:   time.Now(),
		}
		if p.sink != nil {
			p.sink(signal)
			return
		}
		p.logger.Warn().
			Int("worker", workerID).
			Int("status", status).
			Str("url", url).
			Str("headers", fmt.Sprintf("%v", headers)).
			Msg("Transient response from remote system")
	}
}
