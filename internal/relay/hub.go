// Package relay implements the central broadcast hub: it owns the shared
// task store, applies client intents one at a time, and fans the resulting
// events out to every connected client.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
	"github.com/p-blackswan/kanban-relay/internal/metrics"
	"github.com/p-blackswan/kanban-relay/internal/protocol"
	"github.com/p-blackswan/kanban-relay/internal/store"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

// Error messages sent to the originating client.
const (
	MsgNotFound      = "Task not found"
	MsgCreateFailed  = "Failed to create task"
	MsgUpdateFailed  = "Failed to update task"
	MsgMoveFailed    = "Failed to move task"
	MsgDeleteFailed  = "Failed to delete task"
	msgUnknownPrefix = "Unknown event: "
	msgMalformed     = "Malformed frame"
)

// Event results recorded in metrics.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultInvalid  = "invalid"
)

// Config holds hub and connection tuning.
type Config struct {
	// SendBuffer is the number of frames queued per connection before the
	// connection is dropped as a slow consumer.
	SendBuffer int

	// WriteWait bounds a single frame write.
	WriteWait time.Duration

	// PongWait is how long a connection may stay silent before it is closed.
	PongWait time.Duration

	// MaxMessageSize caps inbound frame size in bytes.
	MaxMessageSize int64

	// AllowedOrigins lists browser origins accepted on upgrade. Empty allows all.
	AllowedOrigins []string
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		SendBuffer:     256,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// pingPeriod must be shorter than PongWait.
func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// inbound is one frame from a client, in arrival order. Frames that failed
// to decode carry a rejection instead of an intent so their error reply
// cannot overtake intents queued before them.
type inbound struct {
	client   *Client
	intent   protocol.Intent
	rejected *rejection
}

type rejection struct {
	event   string
	message string
}

// ConnInfo describes a connected client.
type ConnInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Hub is the relay. All store access happens on the goroutine running Run.
type Hub struct {
	cfg     Config
	store   *store.Store
	ids     *IDGenerator
	metrics *metrics.Metrics
	logger  zerolog.Logger

	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	queries    chan func()
	done       chan struct{}
}

// NewHub creates a hub owning st. A nil metrics collector gets a private one.
func NewHub(cfg Config, st *store.Store, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if st == nil {
		st = store.New()
	}
	if m == nil {
		m = metrics.New()
	}

	return &Hub{
		cfg:        cfg,
		store:      st,
		ids:        NewIDGenerator(),
		metrics:    m,
		logger:     logger.With().Str("component", "relay").Logger(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
}

// Run is the dispatch loop. It applies intents one at a time until ctx is
// cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.metrics.SetTasks(h.store.Len())
	h.logger.Info().Int("tasks", h.store.Len()).Msg("relay started")

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.metrics.SetConnections(0)
			h.logger.Info().Msg("relay stopped")
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.metrics.SetConnections(len(h.clients))
			h.logger.Info().Str("conn", c.id).Str("remote", c.remoteAddr).Msg("client connected")
			h.sendTo(c, protocol.TasksAll{Tasks: h.store.All()})

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				h.metrics.SetConnections(len(h.clients))
				h.logger.Info().Str("conn", c.id).Msg("client disconnected")
			}

		case msg := <-h.inbound:
			h.process(msg)

		case q := <-h.queries:
			q()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) process(msg inbound) {
	if _, ok := h.clients[msg.client]; !ok {
		return
	}
	if r := msg.rejected; r != nil {
		h.reject(msg.client, r.event, resultInvalid, r.message)
		return
	}
	start := time.Now()
	h.handle(msg.client, msg.intent)
	h.metrics.ObserveDuration(msg.intent.EventName(), time.Since(start).Seconds())
}

func (h *Hub) handle(c *Client, in protocol.Intent) {
	switch it := in.(type) {
	case protocol.CreateIntent:
		h.create(c, it)
	case protocol.UpdateIntent:
		h.update(c, it)
	case protocol.MoveIntent:
		h.move(c, it)
	case protocol.DeleteIntent:
		h.delete(c, it)
	}
}

func (h *Hub) create(c *Client, in protocol.CreateIntent) {
	if field := in.Fields.CheckEnums(); field != "" {
		h.reject(c, protocol.EventCreate, resultInvalid, invalidFieldMessage(field))
		return
	}

	t := task.New(h.ids.Next(), in.Fields)
	h.store.Insert(t)
	h.metrics.SetTasks(h.store.Len())
	h.metrics.RecordEvent(protocol.EventCreate, resultOK)
	h.logger.Info().Str("conn", c.id).Str("task", t.ID).Msg("task created")
	h.broadcast(protocol.TaskCreated{Task: t})
}

func (h *Hub) update(c *Client, in protocol.UpdateIntent) {
	idx := h.store.FindIndex(in.ID)
	if idx == store.NotFound {
		h.reject(c, protocol.EventUpdate, resultNotFound, MsgNotFound)
		return
	}
	if field := in.Fields.CheckEnums(); field != "" {
		h.reject(c, protocol.EventUpdate, resultInvalid, invalidFieldMessage(field))
		return
	}

	current, err := h.store.At(idx)
	if err != nil {
		h.fail(c, protocol.EventUpdate, MsgUpdateFailed, err)
		return
	}
	merged := task.Merge(current, in.Fields)
	if err := h.store.ReplaceAt(idx, merged); err != nil {
		h.fail(c, protocol.EventUpdate, MsgUpdateFailed, err)
		return
	}
	h.metrics.RecordEvent(protocol.EventUpdate, resultOK)
	h.logger.Info().Str("conn", c.id).Str("task", in.ID).Msg("task updated")
	h.broadcast(protocol.TaskUpdated{Task: merged})
}

func (h *Hub) move(c *Client, in protocol.MoveIntent) {
	idx := h.store.FindIndex(in.ID)
	if idx == store.NotFound {
		h.reject(c, protocol.EventMove, resultNotFound, MsgNotFound)
		return
	}
	if !in.NewStatus.IsValid() {
		h.reject(c, protocol.EventMove, resultInvalid, invalidFieldMessage("status"))
		return
	}

	current, err := h.store.At(idx)
	if err != nil {
		h.fail(c, protocol.EventMove, MsgMoveFailed, err)
		return
	}
	current.Status = in.NewStatus
	if err := h.store.ReplaceAt(idx, current); err != nil {
		h.fail(c, protocol.EventMove, MsgMoveFailed, err)
		return
	}
	h.metrics.RecordEvent(protocol.EventMove, resultOK)
	h.logger.Info().Str("conn", c.id).Str("task", in.ID).Str("status", string(in.NewStatus)).Msg("task moved")
	h.broadcast(protocol.TaskUpdated{Task: current})
}

func (h *Hub) delete(c *Client, in protocol.DeleteIntent) {
	idx := h.store.FindIndex(in.ID)
	if idx == store.NotFound {
		h.reject(c, protocol.EventDelete, resultNotFound, MsgNotFound)
		return
	}
	if _, err := h.store.RemoveAt(idx); err != nil {
		h.fail(c, protocol.EventDelete, MsgDeleteFailed, err)
		return
	}
	h.metrics.SetTasks(h.store.Len())
	h.metrics.RecordEvent(protocol.EventDelete, resultOK)
	h.logger.Info().Str("conn", c.id).Str("task", in.ID).Msg("task deleted")
	h.broadcast(protocol.TaskDeleted{ID: in.ID})
}

// reject answers the sender only; nothing is broadcast and the store is
// left as it was.
func (h *Hub) reject(c *Client, event, result, message string) {
	h.metrics.RecordEvent(event, result)
	h.logger.Debug().Str("conn", c.id).Str("event", event).Str("reason", message).Msg("intent rejected")
	h.sendTo(c, protocol.ErrorEvent{Message: message})
}

func (h *Hub) fail(c *Client, event, message string, err error) {
	h.metrics.RecordEvent(event, "error")
	h.logger.Error().Err(err).Str("conn", c.id).Str("event", event).Msg("applying intent failed")
	h.sendTo(c, protocol.ErrorEvent{Message: message})
}

func (h *Hub) sendTo(c *Client, b protocol.Broadcast) {
	f, err := protocol.Encode(b)
	if err != nil {
		h.logger.Error().Err(err).Str("event", b.EventName()).Msg("encoding event failed")
		return
	}
	if !c.enqueue(f) {
		h.drop(c)
	}
}

// broadcast delivers b to every client, including the originator.
func (h *Hub) broadcast(b protocol.Broadcast) {
	f, err := protocol.Encode(b)
	if err != nil {
		h.logger.Error().Err(err).Str("event", b.EventName()).Msg("encoding broadcast failed")
		return
	}
	h.metrics.RecordBroadcast(b.EventName())
	for c := range h.clients {
		if !c.enqueue(f) {
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closeWith(perrors.ErrSlowConsumer)
	h.metrics.RecordDropped()
	h.metrics.SetConnections(len(h.clients))
	h.logger.Warn().Err(perrors.ErrSlowConsumer).Str("conn", c.id).Msg("dropping client")
}

// query runs fn on the dispatch loop and waits for it.
func (h *Hub) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}
	select {
	case h.queries <- wrapped:
	case <-h.done:
		return perrors.ErrUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current task list in store order.
func (h *Hub) Snapshot(ctx context.Context) ([]task.Task, error) {
	var tasks []task.Task
	if err := h.query(ctx, func() { tasks = h.store.All() }); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return tasks, nil
}

// Connections lists the connected clients.
func (h *Hub) Connections(ctx context.Context) ([]ConnInfo, error) {
	var out []ConnInfo
	err := h.query(ctx, func() {
		out = make([]ConnInfo, 0, len(h.clients))
		for c := range h.clients {
			out = append(out, ConnInfo{ID: c.id, RemoteAddr: c.remoteAddr, ConnectedAt: c.connectedAt})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	return out, nil
}

// Ping reports whether the dispatch loop is responsive.
func (h *Hub) Ping(ctx context.Context) error {
	return h.query(ctx, func() {})
}

// submit hands an intent to the dispatch loop.
func (h *Hub) submit(c *Client, in protocol.Intent) error {
	return h.enqueue(inbound{client: c, intent: in})
}

// submitRejection queues an error reply for a frame that failed to decode.
func (h *Hub) submitRejection(c *Client, event, message string) error {
	return h.enqueue(inbound{client: c, rejected: &rejection{event: event, message: message}})
}

func (h *Hub) enqueue(msg inbound) error {
	select {
	case h.inbound <- msg:
		return nil
	case <-h.done:
		return perrors.ErrUnavailable
	}
}

func (h *Hub) join(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return perrors.ErrUnavailable
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func invalidFieldMessage(field string) string {
	return "Invalid " + field
}

// rejectDecode maps a transport-boundary decode failure onto the error
// message the sender sees.
func rejectDecode(event string, err error) string {
	if errors.Is(err, protocol.ErrUnknownEvent) {
		return msgUnknownPrefix + event
	}
	switch event {
	case protocol.EventCreate:
		return MsgCreateFailed
	case protocol.EventUpdate:
		return MsgUpdateFailed
	case protocol.EventMove:
		return MsgMoveFailed
	case protocol.EventDelete:
		return MsgDeleteFailed
	}
	return err.Error()
}
