package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("device:\n  base_url: http://relay.local/\n"))
	require.NoError(t, err)

	assert.Equal(t, "http://relay.local", cfg.Device.BaseURL)
	assert.Equal(t, "v1", cfg.Device.Schema)
	assert.Equal(t, 10*time.Second, cfg.Device.Timeout.Duration())
	assert.Equal(t, time.Second, cfg.Poll.Interval.Duration())
	assert.True(t, cfg.Poll.GetBackoffEnabled())
	assert.Equal(t, 400*time.Millisecond, cfg.Edit.Debounce.Duration())
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.Addr())
	assert.Equal(t, 2, cfg.EventBus.GetWorkers())
	assert.Equal(t, 256, cfg.EventBus.GetQueueSize())
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention.Duration())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Duration())
}

func TestParseValues(t *testing.T) {
	data := `
device:
  schema: legacy
  timeout: 3s
poll:
  interval: 2s
  backoff_enabled: false
  min_backoff: 1s
  max_backoff: 10s
mqtt:
  enabled: true
  broker: tcp://broker:1883
metrics:
  tags: [site:garden]
`
	cfg, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "legacy", cfg.Device.Schema)
	assert.Equal(t, 3*time.Second, cfg.Device.Timeout.Duration())
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval.Duration())
	assert.False(t, cfg.Poll.GetBackoffEnabled())
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, []string{"site:garden"}, cfg.Metrics.Tags)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown schema", "device:\n  schema: v9\n"},
		{"bad duration", "poll:\n  interval: soon\n"},
		{"inverted backoff", "poll:\n  min_backoff: 1m\n  max_backoff: 1s\n"},
		{"shrinking multiplier", "poll:\n  multiplier: 0.5\n"},
		{"mqtt without broker", "mqtt:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("RELAYBOARD_TEST_URL", "http://10.0.0.5")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "device:\n  base_url: ${RELAYBOARD_TEST_URL}\ndatabase:\n  path: ${RELAYBOARD_TEST_DB:/tmp/rb.sqlite}\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5", cfg.Device.BaseURL)
	assert.Equal(t, "/tmp/rb.sqlite", cfg.Database.Path)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "./relayboard.sqlite", cfg.Database.Path)
}

func TestLoadExample(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.4.1", cfg.Device.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Poll.ClockInterval.Duration())
	assert.True(t, cfg.HTTP.Enabled)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Equal(t, 720*time.Hour, cfg.Ledger.Retention.Duration())
}
