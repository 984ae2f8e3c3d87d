package syncclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/kanban-relay/internal/protocol"
)

var errFakeClosed = errors.New("fake conn closed")

// fakeConn is an in-memory transport. Frames pushed to in are read by the
// channel; frames the channel writes are recorded.
type fakeConn struct {
	in        chan protocol.Frame
	closed    chan struct{}
	closeOnce sync.Once
	autoAck   bool

	// Writes of stallOn block until stall is closed or the conn closes.
	stallOn string
	stall   chan struct{}
	stalled chan struct{}

	mu         sync.Mutex
	written    []protocol.Frame
	pingWrites int
}

func newFakeConn(autoAck bool) *fakeConn {
	return &fakeConn{
		in:      make(chan protocol.Frame, 64),
		closed:  make(chan struct{}),
		autoAck: autoAck,
	}
}

func (c *fakeConn) ReadFrame() (protocol.Frame, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return protocol.Frame{}, io.EOF
	}
}

func (c *fakeConn) WriteFrame(f protocol.Frame) error {
	if c.stallOn != "" && f.Event == c.stallOn {
		select {
		case c.stalled <- struct{}{}:
		default:
		}
		select {
		case <-c.stall:
		case <-c.closed:
			return errFakeClosed
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.Event == protocol.EventPing {
		c.pingWrites++
	}
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	c.written = append(c.written, f)
	if c.autoAck && f.Event == protocol.EventPing {
		select {
		case c.in <- protocol.NewAck(f.Ack):
		default:
		}
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(event string, payload string) {
	c.in <- protocol.Frame{Type: protocol.FrameEvent, Event: event, Payload: []byte(payload)}
}

// events returns written frames other than pings.
func (c *fakeConn) events() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Frame
	for _, f := range c.written {
		if f.Event != protocol.EventPing {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) pings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingWrites
}

// fakeDialer hands out fakeConns. Queued errors are returned first; while
// failAll is set every dial fails; while gate is set dials block on it.
type fakeDialer struct {
	mu      sync.Mutex
	errs    []error
	failAll error
	gate    chan struct{}
	autoAck bool
	stallOn string
	stall   chan struct{}
	dials   int
	conns   []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	if d.failAll != nil {
		return nil, d.failAll
	}
	c := newFakeConn(d.autoAck)
	c.stallOn, c.stall = d.stallOn, d.stall
	c.stalled = make(chan struct{}, 1)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) connCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setFailAll(err error) {
	d.mu.Lock()
	d.failAll = err
	d.mu.Unlock()
}

func (d *fakeDialer) setGate(gate chan struct{}) {
	d.mu.Lock()
	d.gate = gate
	d.mu.Unlock()
}

func testConfig(d *fakeDialer) Config {
	return Config{
		URL:                  "ws://relay.test/ws",
		AutoConnect:          true,
		ReconnectionAttempts: 10,
		ReconnectionDelay:    time.Millisecond,
		ReconnectionDelayMax: 5 * time.Millisecond,
		Timeout:              time.Second,
		PingInterval:         time.Hour,
		ReconnectDelay:       time.Millisecond,
		Dialer:               d,
	}
}

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func startChannel(t *testing.T, cfg Config, h Handler) *Channel {
	t.Helper()
	ch := New(cfg, h, zerolog.Nop())
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}
