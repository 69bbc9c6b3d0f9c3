package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Extract/internal/scheduler"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXTRACT_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8080", cfg.APIAddr())
	assert.Equal(t, scheduler.ModeOn, cfg.Mode())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
db_url: sqlite:///var/lib/extract/extract.db
language: fr
plugin_sources: [builtin, /opt/extract/plugins]
jobs:
  batch_size: 20
  workers: 2
  lease_timeout: 2m
  escalate_after: 3
scheduler:
  tick_interval: 30s
  default_mode: ranges
email:
  enabled: true
  admins: [admin@example.org]
`)
	t.Setenv("EXTRACT_WORKERS", "8")
	t.Setenv("EXTRACT_PLUGIN_SOURCES", "builtin, /srv/plugins ,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fr", cfg.Language)
	assert.Equal(t, []string{"builtin", "/srv/plugins"}, cfg.PluginSources)
	assert.Equal(t, 20, cfg.Jobs.BatchSize)
	assert.Equal(t, 8, cfg.Jobs.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.LeaseTimeout)
	assert.Equal(t, 3, cfg.Jobs.EscalateAfter)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	assert.Equal(t, scheduler.ModeRanges, cfg.Mode())
	assert.True(t, cfg.Email.Enabled)
	assert.Equal(t, []string{"admin@example.org"}, cfg.Email.Admins)

	sqlite, ok := cfg.SQLitePath()
	assert.True(t, ok)
	assert.Equal(t, "/var/lib/extract/extract.db", sqlite)
}

func TestLoad_PathFromEnv(t *testing.T) {
	t.Setenv("EXTRACT_CONFIG", writeFile(t, "api:\n  port: 9090\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.APIAddr())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad int", env: map[string]string{"EXTRACT_BATCH_SIZE": "many"}},
		{name: "bad duration", env: map[string]string{"EXTRACT_LEASE_TIMEOUT": "soon"}},
		{name: "bad bool", env: map[string]string{"EXTRACT_EMAIL_ENABLED": "perhaps"}},
		{name: "bad mode", env: map[string]string{"EXTRACT_DEFAULT_MODE": "sometimes"}},
		{name: "negative workers", file: "jobs:\n  workers: -1\n"},
		{name: "port out of range", env: map[string]string{"SCHED_PORT": "70000"}},
		{name: "empty db url", env: map[string]string{"DB_URL": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("EXTRACT_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}

			_, err := Load(path)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeFile(t, "jobs: [unterminated"))
	assert.Error(t, err)
}

func TestSQLitePath_Postgres(t *testing.T) {
	cfg := Default()
	_, ok := cfg.SQLitePath()
	assert.False(t, ok)
}
