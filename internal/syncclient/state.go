package syncclient

import (
	"time"
)

// State is the lifecycle position of a Channel.
//
//	disconnected ──Start/Reconnect──▶ connecting ──dial ok──▶ connected
//	      ▲                               │                       │
//	      └────────── dial failed ────────┘◀── transport lost ────┘
//
// Close moves any state to closed, which is terminal.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Quality is a coarse bucket of measured round-trip latency.
type Quality string

const (
	QualityUnknown   Quality = "unknown"
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// QualityFor buckets a round-trip time: <50ms excellent, <150ms good,
// <300ms fair, anything slower poor.
func QualityFor(rtt time.Duration) Quality {
	switch {
	case rtt < 50*time.Millisecond:
		return QualityExcellent
	case rtt < 150*time.Millisecond:
		return QualityGood
	case rtt < 300*time.Millisecond:
		return QualityFair
	}
	return QualityPoor
}

// Health is a point-in-time copy of a channel's connection telemetry.
type Health struct {
	Connected         bool          `json:"connected"`
	State             State         `json:"state"`
	LastError         string        `json:"lastError,omitempty"`
	ReconnectAttempts int           `json:"reconnectAttempts"`
	Latency           time.Duration `json:"latency"`
	Quality           Quality       `json:"quality"`
	QueuedMessages    int           `json:"queuedMessages"`
}
