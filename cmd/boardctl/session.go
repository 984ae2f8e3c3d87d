package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/kanban-relay/internal/config"
	"github.com/p-blackswan/kanban-relay/internal/protocol"
	"github.com/p-blackswan/kanban-relay/internal/syncclient"
)

// errRelay wraps error events the relay sent back to this client.
var errRelay = errors.New("relay rejected request")

// session is one sync channel plus the mirrored board.
type session struct {
	ch     *syncclient.Channel
	mirror *syncclient.Mirror
	url    string

	events   chan protocol.Broadcast
	synced   chan struct{}
	syncOnce sync.Once
}

// openSession connects and waits up to opts.timeout for the initial task
// list. The channel lives until ctx is cancelled or Close is called.
func openSession(ctx context.Context, opts *rootOptions, onState func(from, to syncclient.State)) (*session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if opts.url != "" {
		cfg.RelayURL = opts.url
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	s := &session{
		url:    cfg.RelayURL,
		events: make(chan protocol.Broadcast, 256),
		synced: make(chan struct{}),
	}
	s.mirror = syncclient.NewMirror(s.observe)
	syncCfg := cfg.SyncConfig()
	syncCfg.OnStateChange = onState
	s.ch = syncclient.New(syncCfg, s.mirror.Handle, logger)

	if err := s.ch.Start(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(opts.timeout)
	defer timer.Stop()

	select {
	case <-s.synced:
		return s, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	h := s.ch.Health()
	s.ch.Close()
	if h.LastError != "" {
		return nil, fmt.Errorf("relay %s unreachable: %s", s.url, h.LastError)
	}
	return nil, fmt.Errorf("relay %s: no task list after %s", s.url, opts.timeout)
}

func (s *session) observe(ev protocol.Broadcast) {
	if _, ok := ev.(protocol.TasksAll); ok {
		s.syncOnce.Do(func() { close(s.synced) })
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *session) Close() {
	s.ch.Close()
}

// request emits one event and waits for the first broadcast match accepts.
// Error events go only to their sender, so any error event is this
// request's answer.
func (s *session) request(ctx context.Context, event string, payload any, match func(protocol.Broadcast) bool) (protocol.Broadcast, error) {
	if !s.ch.Emit(event, payload) {
		return nil, fmt.Errorf("%s not sent: %s", event, s.ch.Health().LastError)
	}

	for {
		select {
		case ev := <-s.events:
			if e, ok := ev.(protocol.ErrorEvent); ok {
				return nil, fmt.Errorf("%w: %s", errRelay, e.Message)
			}
			if match(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s reply: %w", event, ctx.Err())
		}
	}
}
