package syncclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
)

// silentRelay accepts WebSocket upgrades and never writes a frame.
func silentRelay(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWebSocketDialer_ReadTimeout(t *testing.T) {
	d := WebSocketDialer{HandshakeTimeout: time.Second, ReadTimeout: 50 * time.Millisecond}
	conn, err := d.Dial(context.Background(), silentRelay(t))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadFrame()
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrTimeout)
	assert.Equal(t, "ping timeout", disconnectReason(err))
}

func TestWebSocketDialer_RejectedUpgradeCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := WebSocketDialer{HandshakeTimeout: time.Second}.Dial(context.Background(), "ws"+strings.TrimPrefix(server.URL, "http"))
	var te *perrors.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
	assert.False(t, perrors.IsRetryable(err))
}

func TestDisconnectReason(t *testing.T) {
	assert.Equal(t, "transport close", disconnectReason(io.EOF))
	assert.Equal(t, "transport close", disconnectReason(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.Equal(t, "ping timeout", disconnectReason(perrors.ErrTimeout))
	assert.Equal(t, "transport error", disconnectReason(errors.New("reset")))
}

func TestConfig_DefaultDialerReadTimeout(t *testing.T) {
	cfg := Config{PingInterval: 2 * time.Second}.withDefaults()
	d, ok := cfg.Dialer.(WebSocketDialer)
	require.True(t, ok)
	assert.Equal(t, 6*time.Second, d.ReadTimeout)
}
