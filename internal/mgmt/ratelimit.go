package mgmt

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RPS   int // sustained requests per second
	Burst int // requests allowed in one window
}

// limits returns the per-window request cap and the window length, in whole
// seconds, over which Burst requests average out to roughly RPS.
func (c RateLimitConfig) limits() (int, time.Duration) {
	burst := c.Burst
	if burst < c.RPS {
		burst = c.RPS
	}
	secs := (burst + c.RPS - 1) / c.RPS
	return burst, time.Duration(secs) * time.Second
}

// NewRateLimitMiddleware returns a per-client sliding-window rate limiter.
// Probe endpoints are never limited. cfg.RPS must be positive.
func NewRateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	burst, window := cfg.limits()

	return limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return isProbe(c.Path())
		},
		Max:        burst,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		},
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}
