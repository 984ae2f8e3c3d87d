package syncclient

import (
	"net/http"
	"time"

	"github.com/p-blackswan/kanban-relay/internal/retry"
)

// Config holds sync channel configuration.
type Config struct {
	// URL is the relay WebSocket endpoint, e.g. "ws://localhost:4000/ws".
	URL string

	// AutoConnect starts connecting as soon as Start is called. Without it
	// the channel waits for Reconnect.
	AutoConnect bool

	// ReconnectionAttempts bounds consecutive failed dials before the
	// channel gives up and waits for Reconnect. Zero or less never gives up.
	ReconnectionAttempts int

	// ReconnectionDelay is the first backoff step.
	ReconnectionDelay time.Duration

	// ReconnectionDelayMax caps the exponential backoff.
	ReconnectionDelayMax time.Duration

	// Timeout bounds a single dial including the WebSocket handshake.
	Timeout time.Duration

	// PingInterval is the period between latency measurements while connected.
	PingInterval time.Duration

	// ReconnectDelay is the fixed pause between a forced teardown and the
	// fresh dial issued by Reconnect.
	ReconnectDelay time.Duration

	// Header is sent with the WebSocket handshake.
	Header http.Header

	// Dialer opens transports. Nil uses a WebSocket dialer.
	Dialer Dialer

	// OnStateChange, if set, is called after every state transition. It runs
	// on the channel's goroutines and must not block.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the defaults: auto-connect, 10 attempts, 1s base
// delay, 5s max delay, 10s timeout.
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:4000/ws",
		AutoConnect:          true,
		ReconnectionAttempts: 10,
		ReconnectionDelay:    1 * time.Second,
		ReconnectionDelayMax: 5 * time.Second,
		Timeout:              10 * time.Second,
		PingInterval:         5 * time.Second,
		ReconnectDelay:       500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.ReconnectionDelay <= 0 {
		c.ReconnectionDelay = def.ReconnectionDelay
	}
	if c.ReconnectionDelayMax <= 0 {
		c.ReconnectionDelayMax = def.ReconnectionDelayMax
	}
	if c.ReconnectionDelayMax < c.ReconnectionDelay {
		c.ReconnectionDelayMax = c.ReconnectionDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.Dialer == nil {
		c.Dialer = WebSocketDialer{
			HandshakeTimeout: c.Timeout,
			Header:           c.Header,
			ReadTimeout:      3 * c.PingInterval,
		}
	}
	return c
}

func (c Config) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts: c.ReconnectionAttempts,
		BaseDelay:   c.ReconnectionDelay,
		MaxDelay:    c.ReconnectionDelayMax,
		Jitter:      true,
	}
}
