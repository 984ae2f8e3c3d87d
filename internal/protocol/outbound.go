package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/p-blackswan/kanban-relay/internal/task"
)

// Broadcast is a decoded relay → client event. The set of implementations
// is closed: TasksAll, TaskCreated, TaskUpdated, TaskDeleted, ErrorEvent.
type Broadcast interface {
	EventName() string
	broadcast()
}

// TasksAll carries the full task list sent once per new connection.
type TasksAll struct{ Tasks []task.Task }

// TaskCreated carries a task the relay just added.
type TaskCreated struct{ Task task.Task }

// TaskUpdated carries the full task after an update or move.
type TaskUpdated struct{ Task task.Task }

// TaskDeleted carries the id of a removed task.
type TaskDeleted struct{ ID string }

// ErrorEvent reports a rejected intent to the connection that sent it.
type ErrorEvent struct{ Message string }

func (TasksAll) EventName() string    { return EventTasksAll }
func (TaskCreated) EventName() string { return EventCreated }
func (TaskUpdated) EventName() string { return EventUpdated }
func (TaskDeleted) EventName() string { return EventDeleted }
func (ErrorEvent) EventName() string  { return EventError }

func (TasksAll) broadcast()    {}
func (TaskCreated) broadcast() {}
func (TaskUpdated) broadcast() {}
func (TaskDeleted) broadcast() {}
func (ErrorEvent) broadcast()  {}

// Encode builds the wire frame for b.
func Encode(b Broadcast) (Frame, error) {
	var payload any
	switch ev := b.(type) {
	case TasksAll:
		tasks := ev.Tasks
		if tasks == nil {
			tasks = []task.Task{}
		}
		payload = tasks
	case TaskCreated:
		payload = ev.Task
	case TaskUpdated:
		payload = ev.Task
	case TaskDeleted:
		payload = IDPayload{ID: ev.ID}
	case ErrorEvent:
		payload = ErrorPayload{Message: ev.Message}
	default:
		return Frame{}, fmt.Errorf("%w: cannot encode %T", ErrUnknownEvent, b)
	}
	return NewEvent(b.EventName(), payload)
}

// DecodeBroadcast turns an event payload received from the relay into a
// Broadcast.
func DecodeBroadcast(event string, payload json.RawMessage) (Broadcast, error) {
	f := Frame{Type: FrameEvent, Event: event, Payload: payload}
	switch event {
	case EventTasksAll:
		var tasks []task.Task
		if err := decodePayload(f, &tasks); err != nil {
			return nil, err
		}
		return TasksAll{Tasks: tasks}, nil
	case EventCreated:
		var t task.Task
		if err := decodePayload(f, &t); err != nil {
			return nil, err
		}
		return TaskCreated{Task: t}, nil
	case EventUpdated:
		var t task.Task
		if err := decodePayload(f, &t); err != nil {
			return nil, err
		}
		return TaskUpdated{Task: t}, nil
	case EventDeleted:
		var p IDPayload
		if err := decodePayload(f, &p); err != nil {
			return nil, err
		}
		return TaskDeleted{ID: p.ID}, nil
	case EventError:
		var p ErrorPayload
		if err := decodePayload(f, &p); err != nil {
			return nil, err
		}
		return ErrorEvent{Message: p.Message}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event)
}

// Apply folds a relay event into a client-side board. Error events leave
// the board unchanged.
func Apply(b *task.Board, ev Broadcast) {
	switch e := ev.(type) {
	case TasksAll:
		b.Reset(e.Tasks)
	case TaskCreated:
		b.Upsert(e.Task)
	case TaskUpdated:
		b.Upsert(e.Task)
	case TaskDeleted:
		b.Remove(e.ID)
	case ErrorEvent:
	}
}
