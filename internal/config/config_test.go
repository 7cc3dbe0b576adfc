package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "orderflow", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.Equal(t, "orderflow", cfg.MongoDB.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "redis", cfg.EventBus.Type)
	assert.True(t, cfg.Outbox.Enabled)
	assert.True(t, cfg.Repair.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromPath_YAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
mongodb:
  database: orderflow_test
eventbus:
  type: inprocess
outbox:
  poll_interval: 250ms
log:
  level: debug
  format: text
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "orderflow_test", cfg.MongoDB.Database)
	assert.Equal(t, "inprocess", cfg.EventBus.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.IsDevelopment())

	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
}

func TestLoadFromPath_MissingExplicitFile(t *testing.T) {
	_, err := config.LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, config.ErrConfigNotFound)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("MONGODB_URI", "mongodb://mongo:27017")
	t.Setenv("EVENTBUS_TYPE", "inprocess")
	t.Setenv("OUTBOX_ENABLED", "false")
	t.Setenv("PROJECTION_INITIAL_BACKOFF", "100ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "mongodb://mongo:27017", cfg.MongoDB.URI)
	assert.Equal(t, "inprocess", cfg.EventBus.Type)
	assert.False(t, cfg.Outbox.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Projection.InitialBackoff)
}

func TestLoad_InvalidEnvDuration(t *testing.T) {
	t.Setenv("OUTBOX_POLL_INTERVAL", "not-a-duration")

	_, err := config.Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"invalid port", func(c *config.Config) { c.Server.Port = 0 }},
		{"missing mongodb uri", func(c *config.Config) { c.MongoDB.URI = "" }},
		{"missing mongodb database", func(c *config.Config) { c.MongoDB.Database = "" }},
		{"invalid eventbus type", func(c *config.Config) { c.EventBus.Type = "kafka" }},
		{"missing redis addr for redis bus", func(c *config.Config) { c.Redis.Addr = "" }},
		{"zero outbox batch", func(c *config.Config) { c.Outbox.BatchSize = 0 }},
		{"zero projection attempts", func(c *config.Config) { c.Projection.MaxAttempts = 0 }},
		{"invalid log level", func(c *config.Config) { c.Log.Level = "verbose" }},
		{"invalid log format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrConfigInvalid)
		})
	}
}

func TestValidate_InProcessBusSkipsRedis(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EventBus.Type = "inprocess"
	cfg.Redis.Addr = ""

	require.NoError(t, cfg.Validate())
}
