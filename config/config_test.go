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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Equal(t, "@every 10m", cfg.Outbox.DispatchSchedule)
	assert.Equal(t, "0 3 * * *", cfg.Outbox.CleanupSchedule)
	assert.Equal(t, 30*24*time.Hour, cfg.Outbox.Retention)
	assert.Equal(t, 10*time.Second, cfg.Prospect.Timeout)
	assert.False(t, cfg.Prospect.Enabled)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("CLEARSTACK_OUTBOX_BATCH_SIZE", "25")
	t.Setenv("CLEARSTACK_PROSPECT_API_KEY", "k-123")

	cfg, err := LoadFile(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.Equal(t, "k-123", cfg.Prospect.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFileInvalid(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "database:\n  driver: mysql\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
