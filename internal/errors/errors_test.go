package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportError_Error(t *testing.T) {
	err := NewTransportError("dial", "ws://relay/ws", 403, errors.New("bad handshake"))
	assert.Contains(t, err.Error(), "dial")
	assert.Contains(t, err.Error(), "ws://relay/ws")
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "bad handshake")
}

func TestTransportError_WithoutStatus(t *testing.T) {
	inner := errors.New("connection refused")
	err := NewTransportError("dial", "ws://relay/ws", 0, inner)
	assert.ErrorIs(t, err, inner)
	assert.NotContains(t, err.Error(), "status")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransportError("dial", "u", 0, errors.New("refused"))))
	assert.True(t, IsRetryable(NewTransportError("dial", "u", 502, errors.New("bad gateway"))))
	assert.True(t, IsRetryable(NewTransportError("dial", "u", 429, errors.New("slow down"))))
	assert.True(t, IsRetryable(NewTransportError("dial", "u", 408, errors.New("timeout"))))
	assert.True(t, IsRetryable(ErrTimeout))
	assert.True(t, IsRetryable(ErrUnavailable))
	assert.True(t, IsRetryable(errors.Join(errors.New("ctx"), ErrUnavailable)))

	assert.False(t, IsRetryable(NewTransportError("dial", "u", 404, errors.New("no route"))))
	assert.False(t, IsRetryable(NewTransportError("dial", "u", 401, errors.New("unauth"))))
	assert.False(t, IsRetryable(ErrClosed))
	assert.False(t, IsRetryable(ErrNotFound))
	assert.False(t, IsRetryable(errors.New("generic")))
}

func TestSentinelErrors(t *testing.T) {
	assert.True(t, errors.Is(ErrNotFound, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrInvalidInput))
}
