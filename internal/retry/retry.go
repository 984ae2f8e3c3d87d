// Package retry provides exponential backoff for relay reconnection.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	// MaxAttempts bounds the number of calls to fn. Zero or negative retries
	// until the context is cancelled.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultConfig returns the reconnection defaults: 10 attempts, 1s base, 5s cap.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		MaxDelay:    5 * time.Second,
		Jitter:      true,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func Delay(cfg Config, attempt int) time.Duration {
	raw := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	delay := cfg.MaxDelay
	if raw < float64(cfg.MaxDelay) {
		delay = time.Duration(raw)
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// Do executes fn with exponential backoff. Only retries if the error is retryable.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !perrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Delay(cfg, attempt)):
		}
	}
	return lastErr
}
