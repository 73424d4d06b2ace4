package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "absent.yaml"), noEnv)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, []int{400, 403}, cfg.FreeBusyFallbackStatuses)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: https://dav.example.com/
username: file-user
timeout: 5s
parallel_queries: 4
freebusy_fallback_statuses: [400, 403, 501]
attachments:
  allowed_extensions: [.pdf]
  root: /srv/share
  max_bytes: 1024
`), 0o600))

	env := map[string]string{EnvUsername: "env-user", EnvLogLevel: "DEBUG"}
	cfg, err := load(path, func(k string) string { return env[k] })
	require.NoError(t, err)

	assert.Equal(t, "https://dav.example.com/", cfg.ServerURL)
	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 4, cfg.ParallelQueries)
	assert.Equal(t, []int{400, 403, 501}, cfg.FreeBusyFallbackStatuses)
	assert.Equal(t, []string{".pdf"}, cfg.Attachments.AllowedExtensions)
	assert.Equal(t, "/srv/share", cfg.Attachments.Root)
	assert.Equal(t, int64(1024), cfg.Attachments.MaxBytes)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	// untouched keys keep their defaults
	assert.Equal(t, "davcal", cfg.KeyringService)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad url", "server_url: not a url"},
		{"zero parallelism", "parallel_queries: 0"},
		{"fallback on success status", "freebusy_fallback_statuses: [200]"},
		{"extension without dot", "attachments:\n  allowed_extensions: [pdf]"},
		{"unknown log level", "log_level: chatty"},
		{"not yaml", "server_url: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := load(path, noEnv)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Username = "jane"
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := load(path, noEnv)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
