package relay

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/kanban-relay/internal/requestid"
)

// Handler upgrades HTTP requests to relay connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler returns the WebSocket endpoint for h.
func NewHandler(h *Hub) *Handler {
	allowed := make(map[string]struct{}, len(h.cfg.AllowedOrigins))
	for _, o := range h.cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return &Handler{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger: h.logger.With().Str("component", "relay-ws").Logger(),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (hd *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hd.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		hd.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	c := newClient(hd.hub, conn, requestid.NewConnID(), r.RemoteAddr)
	go c.writePump()
	if err := hd.hub.join(c); err != nil {
		hd.logger.Warn().Err(err).Msg("relay not accepting connections")
		c.close()
		return
	}
	c.readPump()
}
