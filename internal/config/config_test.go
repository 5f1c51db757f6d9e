package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "websocket", cfg.Transport.Kind)
	assert.Equal(t, time.Second, cfg.Backoff.Min)
	assert.Equal(t, 30*time.Second, cfg.Backoff.Max)
	assert.Equal(t, 2.0, cfg.Backoff.Factor)
	assert.Equal(t, 100, cfg.Log.Capacity)
	assert.True(t, cfg.Endpointless())
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
transport:
  kind: redis
  url: redis://localhost:6379/0
  channel: notifications:tutor-7
  await_ack: true
heartbeat:
  interval: 10s
  timeout: 25s
backoff:
  min: 500ms
  max: 1m
  max_retries: 8
log:
  capacity: 250
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Transport.Kind)
	assert.Equal(t, "notifications:tutor-7", cfg.Transport.Channel)
	assert.True(t, cfg.Transport.AwaitAck)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 25*time.Second, cfg.Heartbeat.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.Min)
	assert.Equal(t, time.Minute, cfg.Backoff.Max)
	assert.Equal(t, 8, cfg.Backoff.MaxRetries)
	assert.Equal(t, 250, cfg.Log.Capacity)
	assert.False(t, cfg.Endpointless())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "transport:\n  url: wss://a.example/ws\n")
	t.Setenv("NOTIFIER_URL", "wss://b.example/ws")
	t.Setenv("NOTIFIER_PORT", "9999")
	t.Setenv("NOTIFIER_ENABLED", "false")
	t.Setenv("NOTIFIER_LOG_CAPACITY", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://b.example/ws", cfg.Transport.URL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 5, cfg.Log.Capacity)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"unknown transport": "transport:\n  kind: carrier-pigeon\n",
		"max below min":     "backoff:\n  min: 10s\n  max: 1s\n",
		"factor below one":  "backoff:\n  factor: 0.5\n",
		"timeout too short": "heartbeat:\n  interval: 10s\n  timeout: 5s\n",
		"bad log format":    "logging:\n  format: xml\n",
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestEndpointless(t *testing.T) {
	cfg := Config{Transport: TransportConfig{Kind: "redis", URL: "redis://x"}}
	assert.True(t, cfg.Endpointless())

	cfg.Transport.Channel = "c"
	assert.False(t, cfg.Endpointless())
}
