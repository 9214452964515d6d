package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
api:
  base_url: "https://sheets.example.com/exec"
  hosts:
    - "sheets.example.com"
  timeout: 10s
  username: "lugar"
  password: "tajna"
memory:
  enabled: true
  size_mb: 128
  retention: 24h
keydb:
  enabled: true
  namespace: "test:"
proxy:
  version: 3
  precache:
    - "https://cdn.example.com/css/app.css"
schedules_file: "/etc/cache/schedules.yaml"
`)

	cfg, err := LoadConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "https://sheets.example.com/exec", cfg.API.BaseURL)
	assert.Equal(t, []string{"sheets.example.com"}, cfg.API.Hosts)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, 128, cfg.Memory.SizeMB)
	assert.Equal(t, 24*time.Hour, cfg.Memory.Retention)
	assert.Equal(t, "test:", cfg.KeyDB.Namespace)
	assert.Equal(t, 3, cfg.Proxy.Version)
	assert.Equal(t, []string{"https://cdn.example.com/css/app.css"}, cfg.Proxy.Precache)
	assert.Equal(t, "/etc/cache/schedules.yaml", cfg.Schedules)
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "https://sheets.example.com/exec"
`)

	cfg, err := LoadConfig(path, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Listen)
	assert.Equal(t, 20*time.Second, cfg.API.Timeout)
	assert.Equal(t, 64, cfg.Memory.SizeMB)
	assert.Equal(t, 72*time.Hour, cfg.Memory.Retention)
	assert.Equal(t, "sumarija:", cfg.KeyDB.Namespace)
	assert.Equal(t, "/etc/sumarija/keydb-url", cfg.KeyDB.URLFile)
	assert.Equal(t, 5*time.Second, cfg.KeyDB.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.KeyDB.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.KeyDB.WriteTimeout)
	assert.Equal(t, 10, cfg.KeyDB.PoolSize)
	assert.Equal(t, 1, cfg.Proxy.Version)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), zap.NewNop())
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unterminated")

	_, err := LoadConfig(path, zap.NewNop())
	assert.ErrorContains(t, err, "failed to decode YAML config")
}

func TestKeyDBConfig_ResolveURL(t *testing.T) {
	logger := zap.NewNop()

	t.Run("environment variable wins", func(t *testing.T) {
		t.Setenv("KEYDB_URL", "redis://from-env:6379")
		cfg := KeyDBConfig{URL: "redis://from-config:6379"}
		assert.Equal(t, "redis://from-env:6379", cfg.ResolveURL(logger))
	})

	t.Run("configured url", func(t *testing.T) {
		t.Setenv("KEYDB_URL", "")
		cfg := KeyDBConfig{URL: "redis://from-config:6379"}
		assert.Equal(t, "redis://from-config:6379", cfg.ResolveURL(logger))
	})

	t.Run("connection file", func(t *testing.T) {
		t.Setenv("KEYDB_URL", "")
		path := filepath.Join(t.TempDir(), "keydb-url")
		require.NoError(t, os.WriteFile(path, []byte("redis://from-file:6379\n"), 0o600))
		cfg := KeyDBConfig{URLFile: path}
		assert.Equal(t, "redis://from-file:6379", cfg.ResolveURL(logger))
	})

	t.Run("default", func(t *testing.T) {
		t.Setenv("KEYDB_URL", "")
		cfg := KeyDBConfig{URLFile: filepath.Join(t.TempDir(), "absent")}
		assert.Equal(t, "redis://keydb:6379", cfg.ResolveURL(logger))
	})
}

func TestGenerationTag(t *testing.T) {
	assert.Equal(t, "app-cache-v1", ProxyConfig{Version: 1}.GenerationTag())
	assert.Equal(t, "app-cache-v7", ProxyConfig{Version: 7}.GenerationTag())
}
