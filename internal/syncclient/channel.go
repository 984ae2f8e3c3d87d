// Package syncclient keeps a client attached to the kanban relay: it dials
// with backoff, queues mutations while offline and replays them in order on
// reconnect, and tracks round-trip latency.
package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
	"github.com/p-blackswan/kanban-relay/internal/protocol"
	"github.com/p-blackswan/kanban-relay/internal/retry"
)

// Handler receives every relay event. A returned error or a panic is
// recorded in Health.LastError; the connection stays up.
type Handler func(event string, payload json.RawMessage) error

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = errors.New("channel already started")

// ErrNotStarted is returned by Reconnect before Start.
var ErrNotStarted = errors.New("channel not started")

const (
	reasonForced = "io client disconnect"
	reasonClosed = "client closed"
)

// Channel is a long-lived connection to the relay.
type Channel struct {
	cfg     Config
	handler Handler
	logger  zerolog.Logger

	// writeMu serializes transport writes. It is taken before mu, never
	// while holding it, so a stalled peer cannot block Health or State.
	writeMu sync.Mutex

	mu         sync.Mutex
	state      State
	health     Health
	conn       Conn // non-nil only once the queue has been drained
	opening    Conn // transport replaying the queue, not yet live
	queue      []protocol.Frame
	pending    map[string]time.Time
	teardown   string
	cancelDial context.CancelFunc
	cancel     context.CancelFunc
	started    bool

	// callbacks counts Handler and OnStateChange calls in progress.
	callbacks atomic.Int32

	reconnect chan struct{}
	done      chan struct{}
}

// New creates a disconnected channel. Call Start to begin connecting.
func New(cfg Config, handler Handler, logger zerolog.Logger) *Channel {
	return &Channel{
		cfg:     cfg.withDefaults(),
		handler: handler,
		logger:  logger.With().Str("component", "syncclient").Logger(),
		state:   StateDisconnected,
		health: Health{
			State:   StateDisconnected,
			Quality: QualityUnknown,
		},
		reconnect: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Start launches the connection loop. It returns immediately; the loop runs
// until ctx is cancelled or Close is called.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return perrors.ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, c.cfg.AutoConnect)
	return nil
}

// Emit sends an event to the relay. It returns true only when the frame was
// written to a live connection; otherwise the frame is queued and replayed
// in order once the channel reconnects.
func (c *Channel) Emit(event string, payload any) bool {
	f, err := protocol.NewEvent(event, payload)
	if err != nil {
		c.mu.Lock()
		c.health.LastError = fmt.Sprintf("Message encode error: %v", err)
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	conn, ok := c.liveConnLocked()
	if !ok || conn == nil {
		if ok {
			c.enqueueLocked(f)
		}
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	for {
		c.writeMu.Lock()
		werr := conn.WriteFrame(f)
		c.writeMu.Unlock()
		if werr == nil {
			return true
		}
		c.logger.Warn().Err(werr).Str("event", event).Msg("write failed, queueing")

		c.mu.Lock()
		next, ok := c.liveConnLocked()
		if ok && next != nil && next != conn {
			// A newer transport went live while this write was failing.
			c.mu.Unlock()
			conn = next
			continue
		}
		if ok {
			c.enqueueLocked(f)
		}
		c.mu.Unlock()
		// The read loop notices the broken transport and reconnects.
		go conn.Close()
		return false
	}
}

// transportLocked returns the open transport, live or still replaying.
func (c *Channel) transportLocked() Conn {
	if c.conn != nil {
		return c.conn
	}
	return c.opening
}

// liveConnLocked returns the current transport, nil while offline. ok is
// false once the channel is closed.
func (c *Channel) liveConnLocked() (conn Conn, ok bool) {
	if c.state == StateClosed {
		c.health.LastError = perrors.ErrClosed.Error()
		return nil, false
	}
	return c.conn, true
}

func (c *Channel) enqueueLocked(f protocol.Frame) {
	c.queue = append(c.queue, f)
	c.health.QueuedMessages = len(c.queue)
	c.health.LastError = fmt.Sprintf("Message queued - disconnected (%d queued)", len(c.queue))
}

// Reconnect tears down the current transport and dials again after
// ReconnectDelay, whatever the backoff state.
func (c *Channel) Reconnect() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return perrors.ErrClosed
	}
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	conn := c.transportLocked()
	if conn != nil {
		c.teardown = reasonForced
	}
	cancelDial := c.cancelDial
	c.mu.Unlock()

	c.logger.Info().Msg("manual reconnect requested")

	select {
	case c.reconnect <- struct{}{}:
	default:
	}
	if conn != nil {
		conn.Close()
	}
	if cancelDial != nil {
		cancelDial()
	}
	return nil
}

// Close stops the channel for good. Queued frames are discarded. Close
// waits for the connection loop to exit, except when called from a Handler
// or OnStateChange; those return at once and the loop exits after the
// callback returns (see Done).
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	from := c.state
	c.state = StateClosed
	c.health.State = StateClosed
	c.health.Connected = false
	c.teardown = reasonClosed
	conn := c.transportLocked()
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	c.notify(from, StateClosed, reasonClosed)

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if started && c.callbacks.Load() == 0 {
		<-c.done
	}
	return nil
}

// Health returns a snapshot of the connection telemetry.
func (c *Channel) Health() Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the connection loop has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run(ctx context.Context, connectNow bool) {
	defer close(c.done)

	for {
		if !connectNow {
			select {
			case <-ctx.Done():
				return
			case <-c.reconnect:
			}
			if !sleep(ctx, c.cfg.ReconnectDelay) {
				return
			}
		}
		connectNow = false

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.takeReconnect() {
				if !sleep(ctx, c.cfg.ReconnectDelay) {
					return
				}
				connectNow = true
				continue
			}
			c.logger.Warn().Err(err).Msg("reconnection attempts exhausted")
			c.setState(StateDisconnected, "attempts exhausted")
			continue
		}

		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		delay := retry.Delay(c.cfg.retryConfig(), 0)
		if c.takeReconnect() {
			delay = c.cfg.ReconnectDelay
		}
		if !c.pause(ctx, delay) {
			return
		}
		connectNow = true
	}
}

// dial runs the backoff loop until a transport is open, attempts run out,
// or Reconnect/Close interrupts it.
func (c *Channel) dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelDial = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		c.cancelDial = nil
		c.mu.Unlock()
	}()

	var conn Conn
	err := retry.Do(dialCtx, c.cfg.retryConfig(), func(ctx context.Context) error {
		c.mu.Lock()
		c.health.Latency = 0
		c.health.Quality = QualityUnknown
		c.mu.Unlock()
		c.setState(StateConnecting, "dialing")

		attemptCtx, cancelAttempt := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancelAttempt()

		cn, err := c.cfg.Dialer.Dial(attemptCtx, c.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.mu.Lock()
			c.health.LastError = err.Error()
			c.health.ReconnectAttempts++
			attempts := c.health.ReconnectAttempts
			c.mu.Unlock()
			c.logger.Warn().Err(err).Int("attempt", attempts).Msg("connection failed")
			c.setState(StateDisconnected, "dial failed")

			var te *perrors.TransportError
			if !errors.As(err, &te) && !perrors.IsRetryable(err) {
				err = fmt.Errorf("%w: %v", perrors.ErrUnavailable, err)
			}
			return err
		}

		if ctx.Err() != nil {
			cn.Close()
			return ctx.Err()
		}
		conn = cn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve owns one open transport until it breaks.
func (c *Channel) serve(ctx context.Context, conn Conn) {
	from, changed, err := c.open(conn)
	if errors.Is(err, perrors.ErrClosed) {
		conn.Close()
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("queue drain failed")
		c.finish(conn, "transport error")
		return
	}
	if changed {
		c.notify(from, StateConnected, "transport open")
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.measureLoop(pingCtx, conn)
	}()

	reason := c.readLoop(conn)

	stopPing()
	<-pingDone
	c.finish(conn, reason)
}

// open replays the queue oldest first and then publishes conn as live.
// writeMu is held throughout, so an Emit that sees the new transport
// cannot overtake the replay. A frame leaves the queue only once it has
// been written; on a write failure the unsent frames stay queued in order.
func (c *Channel) open(conn Conn) (State, bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	replayed := 0
	c.mu.Lock()
	c.opening = conn
	defer func() {
		c.mu.Lock()
		c.opening = nil
		c.mu.Unlock()
	}()
	for len(c.queue) > 0 && c.state != StateClosed {
		f := c.queue[0]
		c.mu.Unlock()

		if err := conn.WriteFrame(f); err != nil {
			return 0, false, fmt.Errorf("replay %s: %w", f.Event, err)
		}

		c.mu.Lock()
		c.queue = c.queue[1:]
		c.health.QueuedMessages = len(c.queue)
		replayed++
	}
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return 0, false, perrors.ErrClosed
	}
	if replayed > 0 {
		c.logger.Info().Int("count", replayed).Msg("replayed queued messages")
	}
	c.queue = nil
	c.health.QueuedMessages = 0
	c.health.ReconnectAttempts = 0
	c.health.LastError = ""
	c.conn = conn
	c.pending = make(map[string]time.Time)
	from, changed := c.setStateLocked(StateConnected)
	return from, changed, nil
}

func (c *Channel) finish(conn Conn, reason string) {
	conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.pending = nil
	if c.teardown != "" {
		reason = c.teardown
		c.teardown = ""
	}
	if c.state != StateClosed {
		c.health.LastError = "Disconnected: " + reason
	}
	c.mu.Unlock()

	c.setState(StateDisconnected, reason)
}

func (c *Channel) readLoop(conn Conn) string {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				c.logger.Debug().Err(err).Msg("ignoring malformed frame")
				continue
			}
			return disconnectReason(err)
		}

		switch f.Type {
		case protocol.FrameAck:
			c.ack(f.Ack)
		case protocol.FrameEvent:
			c.dispatch(f.Event, f.Payload)
		}
	}
}

func (c *Channel) dispatch(event string, payload json.RawMessage) {
	if c.handler == nil {
		return
	}

	c.callbacks.Add(1)
	err := func() (err error) {
		defer c.callbacks.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return c.handler(event, payload)
	}()
	if err == nil {
		return
	}

	c.logger.Error().Err(err).Str("event", event).Msg("message handler failed")
	c.mu.Lock()
	c.health.LastError = "Message handler error: " + err.Error()
	c.mu.Unlock()
}

func (c *Channel) measureLoop(ctx context.Context, conn Conn) {
	c.measure(conn)

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.measure(conn)
		}
	}
}

// measure sends one ping; the matching ack completes the measurement.
func (c *Channel) measure(conn Conn) {
	id := uuid.NewString()
	now := time.Now()

	c.mu.Lock()
	if c.conn != conn || c.pending == nil {
		c.mu.Unlock()
		return
	}
	for k, sent := range c.pending {
		if now.Sub(sent) > 2*c.cfg.PingInterval {
			delete(c.pending, k)
		}
	}
	c.pending[id] = now
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteFrame(protocol.NewPing(id))
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.logger.Debug().Err(err).Msg("ping write failed")
	}
}

func (c *Channel) ack(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sent, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	rtt := time.Since(sent)
	c.health.Latency = rtt
	c.health.Quality = QualityFor(rtt)
}

func (c *Channel) setState(to State, reason string) {
	c.mu.Lock()
	from, changed := c.setStateLocked(to)
	c.mu.Unlock()
	if changed {
		c.notify(from, to, reason)
	}
}

func (c *Channel) setStateLocked(to State) (State, bool) {
	from := c.state
	if from == StateClosed || from == to {
		return from, false
	}
	c.state = to
	c.health.State = to
	c.health.Connected = to == StateConnected
	return from, true
}

func (c *Channel) notify(from, to State, reason string) {
	c.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Msg("state transition")
	if c.cfg.OnStateChange != nil {
		c.callbacks.Add(1)
		defer c.callbacks.Add(-1)
		c.cfg.OnStateChange(from, to)
	}
}

func (c *Channel) takeReconnect() bool {
	select {
	case <-c.reconnect:
		return true
	default:
		return false
	}
}

// pause waits d before an automatic redial. A Reconnect during the wait
// switches to the fixed ReconnectDelay.
func (c *Channel) pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	case <-c.reconnect:
		return sleep(ctx, c.cfg.ReconnectDelay)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
