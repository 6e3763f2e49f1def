package browser

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Pacer spaces out navigations per host. A nil Pacer, or one built with a
// non-positive rate, never blocks.
type Pacer struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

// NewPacer creates a per-host pacer allowing requestsPerSecond with the given burst
func NewPacer(requestsPerSecond float64, burst int) *Pacer {
	if burst < 1 {
		burst = 1
	}
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// Enabled reports whether the pacer ever blocks
func (p *Pacer) Enabled() bool {
	return p != nil && p.limit > 0
}

// Wait blocks until a request to rawURL is allowed or ctx is done
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	if !p.Enabled() {
		return nil
	}

	host := extractHost(rawURL)
	if host == "" {
		return nil
	}

	p.mu.Lock()
	limiter, exists := p.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(p.limit, p.burst)
		p.limiters[host] = limiter
	}
	p.mu.Unlock()

	return limiter.Wait(ctx)
}

func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Host
}
