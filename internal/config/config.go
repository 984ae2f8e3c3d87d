package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/p-blackswan/kanban-relay/internal/relay"
	"github.com/p-blackswan/kanban-relay/internal/syncclient"
)

// Config holds relay process configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Relay (WebSocket endpoint)
	RelayListenAddr     string        `envconfig:"RELAY_LISTEN_ADDR" default:":4000"`
	RelayPath           string        `envconfig:"RELAY_PATH" default:"/ws"`
	RelayAllowedOrigins string        `envconfig:"RELAY_ALLOWED_ORIGINS"` // Comma-separated; empty allows any origin
	RelaySeed           bool          `envconfig:"RELAY_SEED" default:"true"`
	RelaySeedFile       string        `envconfig:"RELAY_SEED_FILE"`
	RelaySendBuffer     int           `envconfig:"RELAY_SEND_BUFFER" default:"256"`
	RelayWriteWait      time.Duration `envconfig:"RELAY_WRITE_WAIT" default:"10s"`
	RelayPongWait       time.Duration `envconfig:"RELAY_PONG_WAIT" default:"60s"`
	RelayMaxMessageSize int64         `envconfig:"RELAY_MAX_MESSAGE_SIZE" default:"65536"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"100"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"200"`
	MgmtTLSCert        string `envconfig:"MGMT_TLS_CERT"`
	MgmtTLSKey         string `envconfig:"MGMT_TLS_KEY"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`
}

// AllowedOriginList returns the parsed WebSocket origin allowlist.
// Returns nil if not configured (any origin accepted).
func (c *Config) AllowedOriginList() []string {
	return splitList(c.RelayAllowedOrigins)
}

// RelayConfig maps the relay settings onto the hub configuration.
func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		SendBuffer:     c.RelaySendBuffer,
		WriteWait:      c.RelayWriteWait,
		PongWait:       c.RelayPongWait,
		MaxMessageSize: c.RelayMaxMessageSize,
		AllowedOrigins: c.AllowedOriginList(),
	}
}

// MgmtAuthDisabled reports whether the management API runs without auth.
func (c *Config) MgmtAuthDisabled() bool {
	return strings.EqualFold(c.MgmtAuthMode, "none")
}

// ClientConfig holds boardctl configuration.
type ClientConfig struct {
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"warn"`
	RelayURL             string        `envconfig:"RELAY_URL" default:"ws://localhost:4000/ws"`
	ReconnectionAttempts int           `envconfig:"RECONNECTION_ATTEMPTS" default:"10"`
	ReconnectionDelay    time.Duration `envconfig:"RECONNECTION_DELAY" default:"1s"`
	ReconnectionDelayMax time.Duration `envconfig:"RECONNECTION_DELAY_MAX" default:"5s"`
	Timeout              time.Duration `envconfig:"TIMEOUT" default:"10s"`
	PingInterval         time.Duration `envconfig:"PING_INTERVAL" default:"5s"`
	ReconnectDelay       time.Duration `envconfig:"RECONNECT_DELAY" default:"500ms"`
}

// SyncConfig maps the client settings onto a sync channel configuration.
func (c *ClientConfig) SyncConfig() syncclient.Config {
	return syncclient.Config{
		URL:                  c.RelayURL,
		AutoConnect:          true,
		ReconnectionAttempts: c.ReconnectionAttempts,
		ReconnectionDelay:    c.ReconnectionDelay,
		ReconnectionDelayMax: c.ReconnectionDelayMax,
		Timeout:              c.Timeout,
		PingInterval:         c.PingInterval,
		ReconnectDelay:       c.ReconnectDelay,
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}

// LoadClient reads boardctl configuration from BOARD_-prefixed variables.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process("BOARD", &cfg); err != nil {
		return nil, fmt.Errorf("loading client config: %w", err)
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
