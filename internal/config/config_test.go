package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeReplication, cfg.Stream.Mode)
	assert.Equal(t, 3, cfg.Notify.MaxVisible)
	assert.Equal(t, 5*time.Second, cfg.Notify.TTL)
	assert.False(t, cfg.Resync)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
http:
  addr: ":9090"
stream:
  mode: notify
  reconnect_delay: 250ms
notify:
  ttl: 2s
resync: true
log:
  level: debug
  development: true
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, ModeNotify, cfg.Stream.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Stream.ReconnectDelay)
	assert.Equal(t, "dashboard_changes", cfg.Stream.Channel, "untouched default")
	assert.Equal(t, 2*time.Second, cfg.Notify.TTL)
	assert.True(t, cfg.Resync)
	assert.True(t, cfg.Log.Development)
	require.NoError(t, cfg.Validate())
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := Parse([]byte("http:\n  port: 80\n"), &cfg)
	require.Error(t, err)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse(nil, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(env(map[string]string{
		"DATABASE_URL": "postgres://u:p@db:5432/app",
		"STREAM_MODE":  "notify",
		"LOG_LEVEL":    "",
	}))
	assert.Equal(t, "postgres://u:p@db:5432/app", cfg.Database.DSN)
	assert.Equal(t, ModeNotify, cfg.Stream.Mode)
	assert.Equal(t, "info", cfg.Log.Level, "empty values do not override")
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Stream.Mode = "kafka"
	cfg.Database.DSN = ""
	cfg.Notify.TTL = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.mode")
	assert.Contains(t, err.Error(), "database.dsn")
	assert.Contains(t, err.Error(), "notify.ttl")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboardd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":7070\"\n"), 0o600))
	for _, k := range []string{"HTTP_ADDR", "DATABASE_URL", "STREAM_MODE", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
