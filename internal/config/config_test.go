package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "huckleberry-app", cfg.Huckleberry.ProjectID)
	assert.Equal(t, "Local", cfg.Huckleberry.Timezone)
	assert.Equal(t, 5, cfg.Poll.IntervalMinutes)
	assert.Equal(t, 24, cfg.Poll.WindowBackHours)
	assert.Equal(t, ":8093", cfg.HTTP.Addr)
	assert.Equal(t, "huckleberry", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
huckleberry:
  email: parent@example.com
  password: hunter2
  api_key: key123
  timezone: Europe/Stockholm
poll:
  interval_minutes: 10
mqtt:
  enabled: true
  broker: tcp://localhost:1883
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "parent@example.com", cfg.Huckleberry.Email)
	assert.Equal(t, "Europe/Stockholm", cfg.Huckleberry.Timezone)
	assert.Equal(t, 10, cfg.Poll.IntervalMinutes)
	assert.True(t, cfg.MQTT.Enabled)
	// defaults survive a partial file
	assert.Equal(t, "huckleberry-app", cfg.Huckleberry.ProjectID)

	require.NoError(t, cfg.Validate())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Stockholm", loc.String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().HTTP.Addr, cfg.HTTP.Addr)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("HUCKLEBERRY_EMAIL", "env@example.com")
	t.Setenv("HUCKLEBERRY_POLL_INTERVAL_MINUTES", "2")
	t.Setenv("HUCKLEBERRY_MQTT_ENABLED", "true")
	t.Setenv("HUCKLEBERRY_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env@example.com", cfg.Huckleberry.Email)
	assert.Equal(t, 2, cfg.Poll.IntervalMinutes)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := Defaults()
	cfg.Huckleberry.Email = "parent@example.com"
	cfg.Huckleberry.Password = "hunter2"
	cfg.Huckleberry.APIKey = "key123"
	cfg.Huckleberry.Timezone = "Not/AZone"

	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresBrokerWhenEnabled(t *testing.T) {
	cfg := Defaults()
	cfg.Huckleberry.Email = "parent@example.com"
	cfg.Huckleberry.Password = "hunter2"
	cfg.Huckleberry.APIKey = "key123"
	cfg.MQTT.Enabled = true

	assert.Error(t, cfg.Validate())

	cfg.MQTT.Broker = "tcp://localhost:1883"
	assert.NoError(t, cfg.Validate())
}
