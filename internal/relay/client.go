package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/kanban-relay/internal/protocol"
)

// Client is the relay's side of one WebSocket connection. Frames for the
// peer go through a buffered send channel drained by writePump; readPump
// decodes inbound frames and hands intents to the hub.
type Client struct {
	id          string
	remoteAddr  string
	connectedAt time.Time

	hub    *Hub
	conn   *websocket.Conn
	send   chan protocol.Frame
	logger zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error // set before done is closed
}

func newClient(h *Hub, conn *websocket.Conn, id, remoteAddr string) *Client {
	return &Client{
		id:          id,
		remoteAddr:  remoteAddr,
		connectedAt: time.Now().UTC(),
		hub:         h,
		conn:        conn,
		send:        make(chan protocol.Frame, h.cfg.SendBuffer),
		logger:      h.logger.With().Str("conn", id).Logger(),
		done:        make(chan struct{}),
	}
}

// enqueue queues f for the peer. It returns false when the send buffer is
// full; a closed client silently discards frames.
func (c *Client) enqueue(f protocol.Frame) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

// close stops writePump, which closes the socket and so ends readPump.
func (c *Client) close() { c.closeWith(nil) }

// closeWith stops the client; a non-nil err is sent to the peer as the
// close reason.
func (c *Client) closeWith(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.done)
	})
}

// readPump runs until the peer goes away or the hub stops.
func (c *Client) readPump() {
	defer c.hub.leave(c)

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))

		f, err := protocol.ParseFrame(msg)
		if err != nil {
			c.logger.Warn().Err(err).Msg("ws parse error")
			if err := c.hub.submitRejection(c, "unknown", msgMalformed); err != nil {
				return
			}
			continue
		}
		if f.Type == protocol.FrameAck {
			continue
		}

		in, err := protocol.DecodeIntent(f)
		if err != nil {
			event := f.Event
			if !isKnownIntent(event) {
				event = "unknown"
			}
			c.logger.Debug().Err(err).Str("event", f.Event).Msg("intent rejected at decode")
			if err := c.hub.submitRejection(c, event, rejectDecode(f.Event, err)); err != nil {
				return
			}
			continue
		}

		// Pings are answered here so latency never includes hub queueing.
		if ping, ok := in.(protocol.PingIntent); ok {
			c.hub.metrics.RecordEvent(protocol.EventPing, resultOK)
			if !c.enqueue(protocol.NewAck(ping.Ack)) {
				return
			}
			continue
		}

		if err := c.hub.submit(c, in); err != nil {
			return
		}
	}
}

// writePump is the only writer on the socket.
func (c *Client) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteJSON(f); err != nil {
				c.logger.Debug().Err(err).Msg("ws write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			code, text := websocket.CloseNormalClosure, ""
			if c.closeErr != nil {
				code, text = websocket.CloseTryAgainLater, c.closeErr.Error()
			}
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(code, text),
				time.Now().Add(cfg.WriteWait),
			)
			return
		}
	}
}

func isKnownIntent(event string) bool {
	switch event {
	case protocol.EventCreate, protocol.EventUpdate, protocol.EventMove, protocol.EventDelete, protocol.EventPing:
		return true
	}
	return false
}
