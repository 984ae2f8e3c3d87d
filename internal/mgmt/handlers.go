package mgmt

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
	"github.com/p-blackswan/kanban-relay/internal/health"
	"github.com/p-blackswan/kanban-relay/internal/relay"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

const version = "1.0.0"

// Handlers contains all management API route handlers.
type Handlers struct {
	board         BoardSource
	checker       *health.Checker
	runtimeConfig *RuntimeConfig
	startTime     time.Time
	now           func() time.Time
	logger        zerolog.Logger
}

// NewHandlers creates handlers with dependencies.
func NewHandlers(board BoardSource, checker *health.Checker, rtCfg *RuntimeConfig, logger zerolog.Logger) *Handlers {
	if rtCfg == nil {
		rtCfg = &RuntimeConfig{}
	}
	return &Handlers{
		board:         board,
		checker:       checker,
		runtimeConfig: rtCfg,
		startTime:     time.Now(),
		now:           time.Now,
		logger:        logger.With().Str("component", "mgmt_handlers").Logger(),
	}
}

// snapshot reads the task list through the relay loop.
func (h *Handlers) snapshot(c *fiber.Ctx) ([]task.Task, error) {
	tasks, err := h.board.Snapshot(c.UserContext())
	if err != nil {
		h.logger.Warn().Err(err).Msg("task snapshot failed")
		return nil, relayUnavailable(c, err)
	}
	return tasks, nil
}

// ListTasks handles GET /api/v1/tasks.
func (h *Handlers) ListTasks(c *fiber.Ctx) error {
	var q ListTasksQuery
	if err := c.QueryParser(&q); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_query", "Bad Request",
			"Invalid query: "+err.Error())
	}

	if q.Status != "" && q.Status != "all" && !task.Status(q.Status).IsValid() {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_status", "Bad Request",
			"Invalid status")
	}

	tasks, err := h.snapshot(c)
	if err != nil {
		return err
	}

	opts := task.FilterOptions{
		Search:   q.Search,
		Priority: q.Priority,
		Category: q.Category,
	}
	if q.Status != "all" {
		opts.Status = task.Status(q.Status)
	}
	filtered := task.Filter(tasks, opts)

	return c.JSON(TaskListResponse{
		Tasks:    filtered,
		Total:    len(tasks),
		Filtered: len(filtered),
	})
}

// GetTask handles GET /api/v1/tasks/:id.
func (h *Handlers) GetTask(c *fiber.Ctx) error {
	id := c.Params("id")
	tasks, err := h.snapshot(c)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if t.ID == id {
			return c.JSON(TaskResponse{Task: t})
		}
	}
	return problemResponse(c, fiber.StatusNotFound,
		"task_not_found", "Not Found",
		"Task not found: "+id)
}

// TaskStats handles GET /api/v1/tasks/stats.
func (h *Handlers) TaskStats(c *fiber.Ctx) error {
	tasks, err := h.snapshot(c)
	if err != nil {
		return err
	}
	return c.JSON(task.ComputeStats(tasks))
}

// ExportTasks handles GET /api/v1/tasks/export. The body is the bare task
// array, served as a dated attachment.
func (h *Handlers) ExportTasks(c *fiber.Ctx) error {
	tasks, err := h.snapshot(c)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("kanban-export-%s.json", h.now().Format("2006-01-02"))
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.JSON(tasks)
}

// ListConnections handles GET /api/v1/connections.
func (h *Handlers) ListConnections(c *fiber.Ctx) error {
	conns, err := h.board.Connections(c.UserContext())
	if err != nil {
		h.logger.Warn().Err(err).Msg("connection listing failed")
		return relayUnavailable(c, err)
	}
	if conns == nil {
		conns = []relay.ConnInfo{}
	}
	return c.JSON(ConnectionListResponse{
		Connections: conns,
		Total:       len(conns),
	})
}

// healthMaxAge is how long /api/v1/health reuses the previous report.
const healthMaxAge = 2 * time.Second

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	report := h.checker.Report(c.UserContext(), healthMaxAge)

	checks := make(map[string]string, len(report.Results))
	for name, res := range report.Results {
		checks[name] = string(res.Status)
	}
	overall := "ok"
	if report.Overall() != health.StatusOK {
		overall = "degraded"
	}

	return c.JSON(HealthDetailResponse{
		Status:    overall,
		Checks:    checks,
		CheckedAt: report.CheckedAt,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   version,
	})
}

// GetConfig handles GET /api/v1/config.
func (h *Handlers) GetConfig(c *fiber.Ctx) error {
	cfg := h.runtimeConfig
	return c.JSON(ConfigResponse{
		Environment:     cfg.Environment,
		LogLevel:        cfg.LogLevel,
		RelayListenAddr: cfg.RelayListenAddr,
		MgmtListenAddr:  cfg.MgmtListenAddr,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		AuthMode:        cfg.AuthMode,
	})
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.UserContext()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func relayUnavailable(c *fiber.Ctx, err error) error {
	detail := "Relay is not accepting queries"
	if errors.Is(err, perrors.ErrUnavailable) {
		detail = "Relay is shutting down"
	}
	return problemResponse(c, fiber.StatusServiceUnavailable,
		"relay_unavailable", "Service Unavailable", detail)
}
