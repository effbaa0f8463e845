package triage

import (
	"context"
	"time"

	"support_server/pkg/apperr"
	"support_server/pkg/logger"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Minute
)

// Controller retries a per-message run with exponential backoff.
// Only retryable failures are retried; fatal ones surface immediately.
type Controller struct {
	maxAttempts int
	baseDelay   time.Duration

	// sleep is swappable in tests
	sleep func(time.Duration)
}

func NewController(maxAttempts int, baseDelay time.Duration) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	return &Controller{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       time.Sleep,
	}
}

// Do runs fn, then retries up to maxAttempts more times on retryable
// failure. The delay before retry n (0-based) is baseDelay * 2^n.
func (c *Controller) Do(ctx context.Context, fn func(context.Context) error) error {
	err := fn(ctx)

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if err == nil || !apperr.IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := c.baseDelay * (1 << attempt)
		logger.Warn("Retry %d/%d in %v after failure: %v", attempt+1, c.maxAttempts, delay, err)
		c.sleep(delay)

		err = fn(ctx)
	}

	if err != nil {
		logger.Error("Retries exhausted after %d attempts: %v", c.maxAttempts, err)
	}
	return err
}
