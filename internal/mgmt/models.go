// Package mgmt provides the Management API for the kanban relay.
package mgmt

import (
	"time"

	"github.com/p-blackswan/kanban-relay/internal/relay"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

// --- Request DTOs ---

// ListTasksQuery holds query parameters for GET /api/v1/tasks.
type ListTasksQuery struct {
	Status   string `query:"status"`
	Search   string `query:"search"`
	Priority string `query:"priority"`
	Category string `query:"category"`
}

// --- Response DTOs ---

// TaskResponse wraps a Task for API responses.
type TaskResponse struct {
	Task task.Task `json:"task"`
}

// TaskListResponse wraps a filtered task list.
type TaskListResponse struct {
	Tasks    []task.Task `json:"tasks"`
	Total    int         `json:"total"`
	Filtered int         `json:"filtered"`
}

// ConnectionListResponse lists live relay connections.
type ConnectionListResponse struct {
	Connections []relay.ConnInfo `json:"connections"`
	Total       int              `json:"total"`
}

// HealthDetailResponse is the response for GET /api/v1/health.
type HealthDetailResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checked_at"`
	Uptime    string            `json:"uptime"`
	Version   string            `json:"version"`
}

// ConfigResponse is the response for GET /api/v1/config.
type ConfigResponse struct {
	Environment     string `json:"environment"`
	LogLevel        string `json:"log_level"`
	RelayListenAddr string `json:"relay_listen_addr"`
	MgmtListenAddr  string `json:"mgmt_listen_addr"`
	RateLimitRPS    int    `json:"rate_limit_rps"`
	RateLimitBurst  int    `json:"rate_limit_burst"`
	AuthMode        string `json:"auth_mode"`
}

// RuntimeConfig is the read-only view of process configuration exposed by
// GET /api/v1/config.
type RuntimeConfig struct {
	Environment     string
	LogLevel        string
	RelayListenAddr string
	MgmtListenAddr  string
	RateLimitRPS    int
	RateLimitBurst  int
	AuthMode        string
}

// ProblemDetail follows RFC 7807 for error responses.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}
