// Package health reports whether the relay can serve clients.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

const defaultCheckTimeout = 5 * time.Second

// CheckFunc probes one dependency. It must return once ctx is done.
type CheckFunc func(ctx context.Context) Status

// Pinger is anything that can prove it is still processing work, such as
// the relay's dispatch loop.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports down when p does not answer before the check deadline.
func PingCheck(p Pinger, logger zerolog.Logger) CheckFunc {
	return func(ctx context.Context) Status {
		if err := p.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("ping check failed")
			return StatusDown
		}
		return StatusOK
	}
}

// Result is one check's outcome.
type Result struct {
	Status   Status        `json:"status"`
	Duration time.Duration `json:"durationNs"`
}

// Report is the outcome of one run over every registered check.
type Report struct {
	Results   map[string]Result `json:"checks"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// Ready reports whether no check is down. Degraded still counts as ready.
func (r Report) Ready() bool {
	for _, res := range r.Results {
		if res.Status == StatusDown {
			return false
		}
	}
	return true
}

// Overall folds the results into one status: ok only when every check is.
func (r Report) Overall() Status {
	overall := StatusOK
	for _, res := range r.Results {
		switch res.Status {
		case StatusOK:
		case StatusDown:
			return StatusDown
		default:
			overall = StatusDegraded
		}
	}
	return overall
}

// Checker runs registered checks concurrently and remembers the last report.
type Checker struct {
	mu      sync.Mutex
	checks  map[string]CheckFunc
	last    Report
	timeout time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// NewChecker creates a checker with no checks.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: defaultCheckTimeout,
		now:     time.Now,
		logger:  logger.With().Str("component", "health").Logger(),
	}
}

// Register adds or replaces a named check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Run executes every check, each bounded by the check timeout.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.Lock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.Unlock()

	report := Report{Results: make(map[string]Result, len(checks)), CheckedAt: c.now()}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			s := fn(checkCtx)
			if s != StatusOK {
				c.logger.Debug().Str("check", name).Str("status", string(s)).Msg("check not ok")
			}
			mu.Lock()
			report.Results[name] = Result{Status: s, Duration: time.Since(start)}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	return report
}

// Report returns the last report when it is younger than maxAge, and runs
// the checks otherwise. It keeps frequent status polling off the relay loop.
func (c *Checker) Report(ctx context.Context, maxAge time.Duration) Report {
	c.mu.Lock()
	last := c.last
	c.mu.Unlock()
	if !last.CheckedAt.IsZero() && c.now().Sub(last.CheckedAt) < maxAge {
		return last
	}
	return c.Run(ctx)
}

// IsReady runs every check and reports whether none is down.
func (c *Checker) IsReady(ctx context.Context) bool {
	return c.Run(ctx).Ready()
}

// LivenessHandler answers /health on the relay listener.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessHandler answers /ready on the relay listener with a fresh report.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		status, code := "ready", http.StatusOK
		if !report.Ready() {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "checks": report.Results})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
