package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `env: prod
qbittorrent:
  url: http://qbit:8080
  username: merge
  password: secret
  timeout: 10s
ledger:
  path: /var/lib/qbmerge/ledger.db
repair:
  recheck: true
watch:
  debounce: 2s
  ignore_patterns: [".part"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, EnvProd, cfg.Env)
	assert.Equal(t, "http://qbit:8080", cfg.QBittorrent.URL)
	assert.Equal(t, "merge", cfg.QBittorrent.Username)
	assert.Equal(t, "secret", cfg.QBittorrent.Password)
	assert.Equal(t, 10*time.Second, cfg.QBittorrent.Timeout)
	assert.Equal(t, "/var/lib/qbmerge/ledger.db", cfg.Ledger.Path)
	assert.True(t, cfg.Repair.Recheck)
	assert.False(t, cfg.Repair.DryRun)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, []string{".part"}, cfg.Watch.IgnorePatterns)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "qbmerge", cfg.Tracing.ServiceName)
}

func TestLoad_EnvDefaults(t *testing.T) {
	t.Setenv("QBIT_URL", "http://127.0.0.1:9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Env)
	assert.Equal(t, "http://127.0.0.1:9090", cfg.QBittorrent.URL)
	assert.Equal(t, "admin", cfg.QBittorrent.Username)
	assert.Equal(t, 30*time.Second, cfg.QBittorrent.Timeout)
	assert.Equal(t, "qbmerge.db", cfg.Ledger.Path)
	assert.Equal(t, 5*time.Second, cfg.Watch.Debounce)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	})
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/qbmerge.yaml")

	assert.Equal(t, "/tmp/flag.yaml", Path("/tmp/flag.yaml"))
	assert.Equal(t, "/etc/qbmerge.yaml", Path(""))
}
