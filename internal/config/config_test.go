package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "8080"
  mode: release
database:
  type: sqlite
  path: ./data/proxyflow.db
sweeps:
  status_update: "*/30 * * * *"
pricing:
  isp:
    7: 5.0
    30: 15.0
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, 15.0, cfg.Pricing["isp"][30])

	// Explicit sweep schedules win, missing ones get defaults
	assert.Equal(t, "*/30 * * * *", cfg.Sweeps.StatusUpdate)
	assert.Equal(t, "0 8,20 * * *", cfg.Sweeps.AlertCreate)
	assert.Equal(t, "0 2 * * *", cfg.Sweeps.Analytics)
	assert.Equal(t, "30s", cfg.Notifications.SendTimeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: from-yaml
  admin_key_hash: from-yaml
upstream:
  api_key: from-yaml
`)

	t.Setenv("PROXYFLOW_JWT_SECRET", "from-env")
	t.Setenv("PROXYFLOW_UPSTREAM_API_KEY", "from-env-key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "from-env-key", cfg.Upstream.APIKey)
	assert.Equal(t, "from-yaml", cfg.Auth.AdminKeyHash)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
