package syncclient

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/p-blackswan/kanban-relay/internal/protocol"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

// Mirror keeps a local task.Board in step with relay broadcasts. Its Handle
// method is a Handler. Mirror is safe for concurrent use.
type Mirror struct {
	mu        sync.RWMutex
	board     *task.Board
	relayErr  string
	onApplied func(protocol.Broadcast)
}

// NewMirror returns an empty mirror. onApplied, if non-nil, is called after
// each event has been folded into the board.
func NewMirror(onApplied func(protocol.Broadcast)) *Mirror {
	return &Mirror{board: task.NewBoard(), onApplied: onApplied}
}

// Handle decodes and applies one relay event.
func (m *Mirror) Handle(event string, payload json.RawMessage) error {
	ev, err := protocol.DecodeBroadcast(event, payload)
	if err != nil {
		return fmt.Errorf("decode %s: %w", event, err)
	}

	m.mu.Lock()
	if e, ok := ev.(protocol.ErrorEvent); ok {
		m.relayErr = e.Message
	}
	protocol.Apply(m.board, ev)
	m.mu.Unlock()

	if m.onApplied != nil {
		m.onApplied(ev)
	}
	return nil
}

// Tasks returns the mirrored list in relay order.
func (m *Mirror) Tasks() []task.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.board.Tasks()
}

// Get returns one mirrored task.
func (m *Mirror) Get(id string) (task.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.board.Get(id)
}

// Len returns the number of mirrored tasks.
func (m *Mirror) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.board.Len()
}

// RelayError returns the message of the last error event the relay sent.
func (m *Mirror) RelayError() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relayErr
}
