// Package protocol defines the JSON frames exchanged between the relay and
// its clients over a WebSocket, and decodes them into closed sets of typed
// messages at the transport boundary.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/p-blackswan/kanban-relay/internal/task"
)

// Frame types.
const (
	FrameEvent = "event"
	FrameAck   = "ack"
)

// Client → relay event names.
const (
	EventCreate = "task:create"
	EventUpdate = "task:update"
	EventMove   = "task:move"
	EventDelete = "task:delete"
	EventPing   = "ping"
)

// Relay → client event names.
const (
	EventTasksAll = "tasks:all"
	EventCreated  = "task:created"
	EventUpdated  = "task:updated"
	EventDeleted  = "task:deleted"
	EventError    = "error"
)

var (
	// ErrUnknownEvent is returned for frames naming an event outside the protocol.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformed is returned when a frame or payload cannot be decoded.
	ErrMalformed = errors.New("malformed frame")
)

// Frame is the raw wire envelope. Events carry Event and Payload; an Ack
// set on an event asks the peer to answer with an ack frame echoing it.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     string          `json:"ack,omitempty"`
}

// ParseFrame decodes a text message into a frame.
func ParseFrame(msg []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch f.Type {
	case FrameEvent:
		if f.Event == "" {
			return Frame{}, fmt.Errorf("%w: event frame without event name", ErrMalformed)
		}
	case FrameAck:
		if f.Ack == "" {
			return Frame{}, fmt.Errorf("%w: ack frame without id", ErrMalformed)
		}
	default:
		return Frame{}, fmt.Errorf("%w: frame type %q", ErrMalformed, f.Type)
	}
	return f, nil
}

// NewEvent builds an event frame with payload marshaled to JSON.
func NewEvent(name string, payload any) (Frame, error) {
	f := Frame{Type: FrameEvent, Event: name}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("marshaling %s payload: %w", name, err)
		}
		f.Payload = raw
	}
	return f, nil
}

// NewAck builds the acknowledgment for an event frame carrying id.
func NewAck(id string) Frame {
	return Frame{Type: FrameAck, Ack: id}
}

// NewPing builds a ping expecting an ack with the given id.
func NewPing(ack string) Frame {
	return Frame{Type: FrameEvent, Event: EventPing, Ack: ack}
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// IDPayload carries a bare task id (task:delete, task:deleted).
type IDPayload struct {
	ID string `json:"id"`
}

// MovePayload is the body of a task:move intent.
type MovePayload struct {
	ID        string      `json:"id"`
	NewStatus task.Status `json:"newStatus"`
}

// UpdatePayload is the body of a task:update intent: an id plus any subset
// of task fields.
type UpdatePayload struct {
	ID string `json:"id"`
	task.Patch
}
