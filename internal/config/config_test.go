package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.RelayPort)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 35*time.Second, cfg.SweepInterval)
	assert.Equal(t, 60*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReconnectInterval)
	assert.Equal(t, 5, cfg.MaxReconnectAttempts)
	assert.Equal(t, "ws://localhost:3001/ws/dashboard", cfg.RelayURL)
	assert.Equal(t, ":3001", cfg.ListenAddr())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_PORT", "4100")
	t.Setenv("HEARTBEAT_INTERVAL", "10000") // bare milliseconds
	t.Setenv("RECONNECT_INTERVAL", "250ms")
	t.Setenv("MAX_RECONNECT_ATTEMPTS", "2")
	t.Setenv("PRESENCE_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://cache:6380")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4100, cfg.RelayPort)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.ReconnectInterval)
	assert.Equal(t, 2, cfg.MaxReconnectAttempts)
	assert.True(t, cfg.PresenceEnabled)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_YAMLOverlayThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	yaml := []byte("relay_port: 5000\nsweep_interval: 10s\nheartbeat_timeout: 20s\nheartbeat_interval: 5s\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("RELAY_CONFIG_FILE", path)
	t.Setenv("RELAY_PORT", "5001")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5001, cfg.RelayPort, "env wins over the file")
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 20*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	t.Run("bad integer", func(t *testing.T) {
		t.Setenv("RELAY_PORT", "three-thousand")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "RELAY_PORT")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("RELAY_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "read config file")
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.HeartbeatInterval = 90 * time.Second
	cfg.LogLevel = "verbose"
	cfg.RelayURL = "http://localhost:3001"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEARTBEAT_INTERVAL must be shorter")
	assert.Contains(t, err.Error(), "LOG_LEVEL")
	assert.Contains(t, err.Error(), "RELAY_URL")
}

func TestValidate_InboundRate(t *testing.T) {
	cfg := Default()
	cfg.InboundRate = 0
	cfg.InboundBurst = 0
	assert.NoError(t, cfg.Validate(), "zero rate disables limiting")

	cfg.InboundRate = -1
	assert.ErrorContains(t, cfg.Validate(), "INBOUND_RATE_LIMIT must not be negative")

	cfg.InboundRate = 10
	cfg.InboundBurst = 0
	assert.ErrorContains(t, cfg.Validate(), "INBOUND_RATE_BURST must be positive")
}
