package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/kanban-relay/internal/errors"
	"github.com/p-blackswan/kanban-relay/internal/metrics"
	"github.com/p-blackswan/kanban-relay/internal/protocol"
	"github.com/p-blackswan/kanban-relay/internal/store"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

// newTestHub builds a hub that is driven directly from the test goroutine.
func newTestHub(t *testing.T, seed ...task.Task) *Hub {
	t.Helper()
	h := NewHub(Config{SendBuffer: 16}, store.New(seed...), metrics.New(), zerolog.Nop())
	h.ids.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h
}

// attach registers a fake client with no socket.
func attach(h *Hub, id string) *Client {
	c := &Client{
		id:     id,
		hub:    h,
		send:   make(chan protocol.Frame, h.cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: zerolog.Nop(),
	}
	h.clients[c] = struct{}{}
	return c
}

func drain(c *Client) []protocol.Frame {
	var out []protocol.Frame
	for {
		select {
		case f := <-c.send:
			out = append(out, f)
		default:
			return out
		}
	}
}

func decodeTask(t *testing.T, f protocol.Frame) task.Task {
	t.Helper()
	var tk task.Task
	require.NoError(t, json.Unmarshal(f.Payload, &tk))
	return tk
}

func strPtr(s string) *string { return &s }

func TestHub_CreateBroadcastsToEveryone(t *testing.T) {
	h := newTestHub(t)
	clients := []*Client{attach(h, "a"), attach(h, "b"), attach(h, "c")}

	h.handle(clients[1], protocol.CreateIntent{Fields: task.Patch{Title: strPtr("X")}})

	for _, c := range clients {
		frames := drain(c)
		require.Len(t, frames, 1, c.id)
		assert.Equal(t, protocol.EventCreated, frames[0].Event)
		tk := decodeTask(t, frames[0])
		assert.Equal(t, "1700000000000", tk.ID)
		assert.Equal(t, "X", tk.Title)
		assert.Equal(t, task.StatusTodo, tk.Status)
		assert.Equal(t, task.PriorityMedium, tk.Priority)
		assert.Equal(t, task.CategoryFeature, tk.Category)
		assert.Empty(t, tk.Attachments)
	}
	assert.Equal(t, 1, h.store.Len())
}

func TestHub_CreateAssignsDistinctIDsWithinSameMillisecond(t *testing.T) {
	h := newTestHub(t)
	c := attach(h, "a")

	h.handle(c, protocol.CreateIntent{Fields: task.Patch{Title: strPtr("one")}})
	h.handle(c, protocol.CreateIntent{Fields: task.Patch{Title: strPtr("two")}})

	frames := drain(c)
	require.Len(t, frames, 2)
	first, second := decodeTask(t, frames[0]), decodeTask(t, frames[1])
	assert.Equal(t, "1700000000000", first.ID)
	assert.Equal(t, "1700000000001", second.ID)
}

func TestHub_UnknownIDIsErrorToSenderOnly(t *testing.T) {
	intents := []protocol.Intent{
		protocol.UpdateIntent{ID: "missing", Fields: task.Patch{Title: strPtr("x")}},
		protocol.MoveIntent{ID: "missing", NewStatus: task.StatusDone},
		protocol.DeleteIntent{ID: "missing"},
	}
	for _, in := range intents {
		t.Run(in.EventName(), func(t *testing.T) {
			h := newTestHub(t, store.DefaultSeed()...)
			sender, other := attach(h, "sender"), attach(h, "other")

			h.handle(sender, in)

			frames := drain(sender)
			require.Len(t, frames, 1)
			assert.Equal(t, protocol.EventError, frames[0].Event)
			assert.JSONEq(t, `{"message":"Task not found"}`, string(frames[0].Payload))
			assert.Empty(t, drain(other))
			assert.Equal(t, 1, h.store.Len())
		})
	}
}

func TestHub_UpdateMergesPresentFields(t *testing.T) {
	h := newTestHub(t, store.DefaultSeed()...)
	c := attach(h, "a")
	high := task.PriorityHigh

	h.handle(c, protocol.UpdateIntent{ID: "1", Fields: task.Patch{Priority: &high}})

	frames := drain(c)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventUpdated, frames[0].Event)
	tk := decodeTask(t, frames[0])
	assert.Equal(t, task.PriorityHigh, tk.Priority)
	assert.Equal(t, "Sample Task", tk.Title)
	assert.Equal(t, "This is a sample task", tk.Description)
}

func TestHub_MoveChangesStatusOnly(t *testing.T) {
	h := newTestHub(t, store.DefaultSeed()...)
	c := attach(h, "a")
	before, _ := h.store.Find("1")

	h.handle(c, protocol.MoveIntent{ID: "1", NewStatus: task.StatusDone})

	after, _ := h.store.Find("1")
	before.Status = task.StatusDone
	assert.Equal(t, before, after)
	frames := drain(c)
	require.Len(t, frames, 1)
	assert.Equal(t, protocol.EventUpdated, frames[0].Event)
}

func TestHub_DeleteBroadcastsID(t *testing.T) {
	h := newTestHub(t, store.DefaultSeed()...)
	a, b := attach(h, "a"), attach(h, "b")

	h.handle(a, protocol.DeleteIntent{ID: "1"})

	for _, c := range []*Client{a, b} {
		frames := drain(c)
		require.Len(t, frames, 1)
		assert.Equal(t, protocol.EventDeleted, frames[0].Event)
		assert.JSONEq(t, `{"id":"1"}`, string(frames[0].Payload))
	}
	assert.Equal(t, 0, h.store.Len())
}

func TestHub_RejectsInvalidEnums(t *testing.T) {
	bad := task.Status("archived")
	badPriority := task.Priority("Urgent")
	tests := []struct {
		name string
		in   protocol.Intent
		msg  string
	}{
		{"create", protocol.CreateIntent{Fields: task.Patch{Title: strPtr("x"), Status: &bad}}, "Invalid status"},
		{"update", protocol.UpdateIntent{ID: "1", Fields: task.Patch{Priority: &badPriority}}, "Invalid priority"},
		{"move", protocol.MoveIntent{ID: "1", NewStatus: bad}, "Invalid status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t, store.DefaultSeed()...)
			sender, other := attach(h, "s"), attach(h, "o")
			before := h.store.All()

			h.handle(sender, tt.in)

			frames := drain(sender)
			require.Len(t, frames, 1)
			assert.JSONEq(t, `{"message":"`+tt.msg+`"}`, string(frames[0].Payload))
			assert.Empty(t, drain(other))
			assert.Equal(t, before, h.store.All())
		})
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := NewHub(Config{SendBuffer: 1}, store.New(), metrics.New(), zerolog.Nop())
	fast, slow := attach(h, "fast"), attach(h, "slow")
	slow.send <- protocol.NewAck("filler")

	h.handle(fast, protocol.CreateIntent{Fields: task.Patch{Title: strPtr("x")}})

	_, stillThere := h.clients[slow]
	assert.False(t, stillThere)
	select {
	case <-slow.done:
	default:
		t.Fatal("slow client should be closed")
	}
	assert.ErrorIs(t, slow.closeErr, perrors.ErrSlowConsumer)
	assert.Len(t, drain(fast), 1)
}

func TestHub_RejectionFollowsEarlierIntents(t *testing.T) {
	h := newTestHub(t, store.DefaultSeed()...)
	sender, other := attach(h, "a"), attach(h, "b")

	h.process(inbound{client: sender, intent: protocol.UpdateIntent{ID: "1", Fields: task.Patch{Title: strPtr("Y")}}})
	h.process(inbound{client: sender, rejected: &rejection{event: "unknown", message: msgMalformed}})

	frames := drain(sender)
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.EventUpdated, frames[0].Event)
	assert.Equal(t, protocol.EventError, frames[1].Event)
	assert.JSONEq(t, `{"message":"Malformed frame"}`, string(frames[1].Payload))

	others := drain(other)
	require.Len(t, others, 1, "rejections go to the sender only")
	assert.Equal(t, protocol.EventUpdated, others[0].Event)
}

func TestHub_IgnoresFramesFromDepartedClient(t *testing.T) {
	h := newTestHub(t, store.DefaultSeed()...)
	c := attach(h, "a")
	delete(h.clients, c)

	h.process(inbound{client: c, intent: protocol.DeleteIntent{ID: "1"}})
	h.process(inbound{client: c, rejected: &rejection{event: "unknown", message: msgMalformed}})

	assert.Empty(t, drain(c))
	assert.Equal(t, 1, h.store.Len())
}

func TestHub_SnapshotThroughLoop(t *testing.T) {
	h := newTestHub(t, store.DefaultSeed()...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	tasks, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "1", tasks[0].ID)

	conns, err := h.Connections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conns)
	assert.NoError(t, h.Ping(context.Background()))

	cancel()
	<-h.Done()
	_, err = h.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestIDGenerator_Monotonic(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	g := &IDGenerator{now: func() time.Time { return now }}

	assert.Equal(t, "1700000000000", g.Next())
	assert.Equal(t, "1700000000001", g.Next())

	now = time.UnixMilli(1699999999000) // clock stepped back
	assert.Equal(t, "1700000000002", g.Next())

	now = time.UnixMilli(1700000005000)
	assert.Equal(t, "1700000005000", g.Next())
}

func TestRejectDecode(t *testing.T) {
	assert.Equal(t, MsgCreateFailed, rejectDecode(protocol.EventCreate, protocol.ErrMalformed))
	assert.Equal(t, MsgDeleteFailed, rejectDecode(protocol.EventDelete, protocol.ErrMalformed))
	assert.Equal(t, "Unknown event: task:archive", rejectDecode("task:archive", protocol.ErrUnknownEvent))
}
