package collector

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy retries an operation a bounded number of times with a fixed
// delay. Rate-limit responses are not treated specially.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Execute runs fn until it succeeds, attempts run out, or ctx ends.
// fn receives the 1-based attempt number.
func (p RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, operation string, fn func(attempt int) error) error {
	attempts := max(1, p.MaxAttempts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}

		logger.Debug().
			Str("operation", operation).
			Int("attempt", attempt).
			Err(lastErr).
			Dur("delay", p.Delay).
			Msg("Retrying after delay")

		if err := sleepCtx(ctx, p.Delay); err != nil {
			return err
		}
	}

	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
