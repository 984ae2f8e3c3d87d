// Package config tests.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":4000", cfg.RelayListenAddr)
	assert.Equal(t, "/ws", cfg.RelayPath)
	assert.True(t, cfg.RelaySeed)
	assert.Empty(t, cfg.RelaySeedFile)
	assert.Equal(t, 256, cfg.RelaySendBuffer)
	assert.Equal(t, ":8090", cfg.MgmtListenAddr)
	assert.Equal(t, "api-key", cfg.MgmtAuthMode)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("RELAY_LISTEN_ADDR", ":9000")
	t.Setenv("RELAY_SEED", "false")
	t.Setenv("RELAY_SEED_FILE", "/etc/board/seed.yaml")
	t.Setenv("RELAY_PONG_WAIT", "30s")
	t.Setenv("MGMT_AUTH_MODE", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.RelayListenAddr)
	assert.False(t, cfg.RelaySeed)
	assert.Equal(t, "/etc/board/seed.yaml", cfg.RelaySeedFile)
	assert.Equal(t, 30*time.Second, cfg.RelayPongWait)
	assert.True(t, cfg.MgmtAuthDisabled())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("RELAY_SEND_BUFFER", "lots")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadWithPrefix(t *testing.T) {
	t.Setenv("KANBAN_RELAY_LISTEN_ADDR", ":7000")
	cfg, err := LoadWithPrefix("KANBAN")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.RelayListenAddr)
}

func TestConfig_AllowedOriginList(t *testing.T) {
	cfg := &Config{}
	assert.Nil(t, cfg.AllowedOriginList())

	cfg.RelayAllowedOrigins = "http://localhost:5173, https://board.example.com,,"
	assert.Equal(t, []string{"http://localhost:5173", "https://board.example.com"}, cfg.AllowedOriginList())
}

func TestConfig_RelayConfig(t *testing.T) {
	cfg := &Config{
		RelaySendBuffer:     32,
		RelayWriteWait:      time.Second,
		RelayPongWait:       5 * time.Second,
		RelayMaxMessageSize: 1024,
		RelayAllowedOrigins: "http://localhost:5173",
	}
	rc := cfg.RelayConfig()
	assert.Equal(t, 32, rc.SendBuffer)
	assert.Equal(t, time.Second, rc.WriteWait)
	assert.Equal(t, 5*time.Second, rc.PongWait)
	assert.Equal(t, int64(1024), rc.MaxMessageSize)
	assert.Equal(t, []string{"http://localhost:5173"}, rc.AllowedOrigins)
}

func TestLoadClient(t *testing.T) {
	os.Clearenv()
	t.Setenv("BOARD_RELAY_URL", "ws://relay.internal:4000/ws")
	t.Setenv("BOARD_RECONNECTION_ATTEMPTS", "3")

	cfg, err := LoadClient()
	require.NoError(t, err)
	sc := cfg.SyncConfig()
	assert.Equal(t, "ws://relay.internal:4000/ws", sc.URL)
	assert.True(t, sc.AutoConnect)
	assert.Equal(t, 3, sc.ReconnectionAttempts)
	assert.Equal(t, time.Second, sc.ReconnectionDelay)
	assert.Equal(t, 5*time.Second, sc.ReconnectionDelayMax)
	assert.Equal(t, 10*time.Second, sc.Timeout)
	assert.Equal(t, 5*time.Second, sc.PingInterval)
	assert.Equal(t, 500*time.Millisecond, sc.ReconnectDelay)
}
