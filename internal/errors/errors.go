// Package errors provides structured error types for the relay and its clients.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrTimeout      = errors.New("operation timed out")
	ErrNotFound     = errors.New("task not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("relay unavailable")
	ErrClosed       = errors.New("channel closed")
	ErrSlowConsumer = errors.New("slow consumer")
)

// TransportError represents a failed dial or handshake against the relay.
// StatusCode is the HTTP status of the upgrade response, or 0 when the
// request never got one (refused, reset, DNS failure).
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError creates a new transport error.
func NewTransportError(op, url string, statusCode int, err error) *TransportError {
	return &TransportError{Op: op, URL: url, StatusCode: statusCode, Err: err}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
// Upgrade responses in the 4xx range mean the endpoint rejects us and
// repeating the dial will not help, except for 408 and 429.
func IsRetryable(err error) bool {
	var tErr *TransportError
	if errors.As(err, &tErr) {
		switch {
		case tErr.StatusCode == 408, tErr.StatusCode == 429:
			return true
		case tErr.StatusCode >= 400 && tErr.StatusCode < 500:
			return false
		}
		return true
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}
