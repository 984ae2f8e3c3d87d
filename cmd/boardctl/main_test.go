package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/kanban-relay/internal/metrics"
	"github.com/p-blackswan/kanban-relay/internal/relay"
	"github.com/p-blackswan/kanban-relay/internal/store"
	"github.com/p-blackswan/kanban-relay/internal/task"
)

func startRelay(t *testing.T) string {
	t.Helper()
	hub := relay.NewHub(relay.DefaultConfig(), store.New(store.DefaultSeed()...), metrics.New(), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", relay.NewHandler(hub))
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
		server.Close()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
}

// run executes boardctl with args against url and returns stdout.
func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--url", url, "--timeout", "2s"))
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	url := startRelay(t)

	out, err := run(t, url, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Sample Task")

	out, err = run(t, url, "list", "--status", "done", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)

	out, err = run(t, url, "list", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "todo:        1")
	assert.Contains(t, out, "total:       1")
}

func TestList_InvalidStatus(t *testing.T) {
	_, err := run(t, "ws://127.0.0.1:1/ws", "list", "--status", "blocked")
	assert.ErrorContains(t, err, "invalid status")
}

func TestCreate(t *testing.T) {
	url := startRelay(t)

	out, err := run(t, url, "create", "--title", "Write docs", "--priority", "High", "-a", "spec=https://example.com/spec", "--json")
	require.NoError(t, err)

	var created task.Task
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Write docs", created.Title)
	assert.Equal(t, task.PriorityHigh, created.Priority)
	assert.Equal(t, task.StatusTodo, created.Status)
	assert.Equal(t, task.CategoryFeature, created.Category)
	assert.Equal(t, []task.Attachment{{Name: "spec", URL: "https://example.com/spec"}}, created.Attachments)

	out, err = run(t, url, "list", "--search", "docs", "--json")
	require.NoError(t, err)
	var tasks []task.Task
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, created.ID, tasks[0].ID)
}

func TestCreate_ValidatedLocally(t *testing.T) {
	// Nothing listens here; validation must fail before any dial.
	url := "ws://127.0.0.1:1/ws"

	_, err := run(t, url, "create", "--description", "no title")
	assert.ErrorContains(t, err, "Title is required")

	_, err = run(t, url, "create", "--title", "x", "--priority", "Urgent")
	assert.ErrorContains(t, err, "invalid priority")

	_, err = run(t, url, "create", "--title", "x", "-a", "missing-url")
	assert.ErrorContains(t, err, "invalid attachment")
}

func TestUpdate(t *testing.T) {
	url := startRelay(t)

	out, err := run(t, url, "update", "1", "--title", "Renamed", "--json")
	require.NoError(t, err)

	var updated task.Task
	require.NoError(t, json.Unmarshal([]byte(out), &updated))
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "This is a sample task", updated.Description)
	assert.Equal(t, task.StatusTodo, updated.Status)

	_, err = run(t, url, "update", "1")
	assert.ErrorContains(t, err, "nothing to update")
}

func TestMove(t *testing.T) {
	url := startRelay(t)

	out, err := run(t, url, "move", "1", "in-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "[in-progress]")

	_, err = run(t, url, "move", "1", "blocked")
	assert.ErrorContains(t, err, "invalid status")
}

func TestDelete(t *testing.T) {
	url := startRelay(t)

	out, err := run(t, url, "delete", "1")
	require.NoError(t, err)
	assert.Equal(t, "deleted 1\n", out)

	_, err = run(t, url, "delete", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errRelay)
	assert.Contains(t, err.Error(), "Task not found")
}

func TestPing(t *testing.T) {
	url := startRelay(t)

	out, err := run(t, url, "ping")
	require.NoError(t, err)
	assert.Contains(t, out, "latency")
}

func TestUnreachableRelay(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"list", "--url", "ws://127.0.0.1:1/ws", "--timeout", "200ms"})
	err := cmd.Execute()
	assert.ErrorContains(t, err, "ws://127.0.0.1:1/ws")
}

func TestParseAttachments(t *testing.T) {
	atts, err := parseAttachments([]string{"a=https://x/a", " b = https://x/b "})
	require.NoError(t, err)
	assert.Equal(t, []task.Attachment{{Name: "a", URL: "https://x/a"}, {Name: "b", URL: "https://x/b"}}, atts)

	_, err = parseAttachments([]string{"=https://x"})
	assert.Error(t, err)
}
