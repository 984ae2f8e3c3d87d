package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/p-blackswan/kanban-relay/internal/task"
)

// Intent is a decoded client → relay message. The set of implementations is
// closed: CreateIntent, UpdateIntent, MoveIntent, DeleteIntent, PingIntent.
type Intent interface {
	// EventName returns the wire event the intent was decoded from.
	EventName() string
	intent()
}

// CreateIntent asks the relay to add a task built from Fields.
type CreateIntent struct {
	Fields task.Patch
}

// UpdateIntent asks the relay to shallow-merge Fields into task ID.
type UpdateIntent struct {
	ID     string
	Fields task.Patch
}

// MoveIntent asks the relay to set the status of task ID.
type MoveIntent struct {
	ID        string
	NewStatus task.Status
}

// DeleteIntent asks the relay to remove task ID.
type DeleteIntent struct {
	ID string
}

// PingIntent asks the relay to acknowledge Ack. It never touches tasks.
type PingIntent struct {
	Ack string
}

func (CreateIntent) EventName() string { return EventCreate }
func (UpdateIntent) EventName() string { return EventUpdate }
func (MoveIntent) EventName() string   { return EventMove }
func (DeleteIntent) EventName() string { return EventDelete }
func (PingIntent) EventName() string   { return EventPing }

func (CreateIntent) intent() {}
func (UpdateIntent) intent() {}
func (MoveIntent) intent()   {}
func (DeleteIntent) intent() {}
func (PingIntent) intent()   {}

// DecodeIntent turns an event frame from a client into an Intent.
func DecodeIntent(f Frame) (Intent, error) {
	if f.Type != FrameEvent {
		return nil, fmt.Errorf("%w: expected event frame, got %q", ErrMalformed, f.Type)
	}

	switch f.Event {
	case EventCreate:
		var p task.Patch
		if err := decodePayload(f, &p); err != nil {
			return nil, err
		}
		return CreateIntent{Fields: p}, nil

	case EventUpdate:
		var p UpdatePayload
		if err := decodePayload(f, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, f.Event)
		}
		return UpdateIntent{ID: p.ID, Fields: p.Patch}, nil

	case EventMove:
		var p MovePayload
		if err := decodePayload(f, &p); err != nil {
			return nil, err
		}
		if p.ID == "" || p.NewStatus == "" {
			return nil, fmt.Errorf("%w: %s needs id and newStatus", ErrMalformed, f.Event)
		}
		return MoveIntent{ID: p.ID, NewStatus: p.NewStatus}, nil

	case EventDelete:
		var p IDPayload
		if err := decodePayload(f, &p); err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, f.Event)
		}
		return DeleteIntent{ID: p.ID}, nil

	case EventPing:
		return PingIntent{Ack: f.Ack}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, f.Event)
}

func decodePayload(f Frame, v any) error {
	if len(f.Payload) == 0 || string(f.Payload) == "null" {
		return fmt.Errorf("%w: %s without payload", ErrMalformed, f.Event)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, f.Event, err)
	}
	return nil
}
