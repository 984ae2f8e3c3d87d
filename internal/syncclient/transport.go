package syncclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
	"github.com/p-blackswan/kanban-relay/internal/protocol"
)

// Conn is one open transport to the relay. ReadFrame is called from a
// single goroutine; WriteFrame calls are serialized by the channel; Close
// may be called at any time.
type Conn interface {
	ReadFrame() (protocol.Frame, error)
	WriteFrame(protocol.Frame) error
	Close() error
}

// Dialer opens a Conn to the relay.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the relay with gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	Header           http.Header

	// ReadTimeout closes a transport that delivers nothing for this long.
	// The relay acks every latency ping, so a live peer is never silent
	// for more than a ping interval. Zero disables the deadline.
	ReadTimeout time.Duration
}

// Dial connects and completes the WebSocket handshake.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, perrors.NewTransportError("ws dial", url, status, err)
	}
	return &wsConn{conn: conn, readTimeout: d.ReadTimeout}, nil
}

const writeWait = 10 * time.Second

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

func (c *wsConn) ReadFrame() (protocol.Frame, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return protocol.Frame{}, fmt.Errorf("%w: nothing read for %s", perrors.ErrTimeout, c.readTimeout)
		}
		return protocol.Frame{}, err
	}
	return protocol.ParseFrame(msg)
}

func (c *wsConn) WriteFrame(f protocol.Frame) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// disconnectReason names why a transport stopped delivering frames.
func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	switch {
	case errors.Is(err, io.EOF), errors.As(err, &closeErr):
		return "transport close"
	case errors.Is(err, perrors.ErrTimeout):
		return "ping timeout"
	}
	return "transport error"
}
