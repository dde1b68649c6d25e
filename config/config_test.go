package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, c.HTTP.Port)
	assert.Equal(t, DefaultTimeout, c.HTTP.Timeout)
	assert.Equal(t, []string{"*"}, c.HTTP.AllowedOrigins)
	assert.Equal(t, DefaultModelDir, c.Models.Dir)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "sqlite3", c.Database.Driver)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
  timeout: 5s
models:
  dir: models
log:
  level: debug
  file: logs/service.log
database:
  dsn: pitwall.db
  record_predictions: true
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.HTTP.Port)
	assert.Equal(t, 5*time.Second, c.HTTP.Timeout)
	assert.Equal(t, filepath.Join(dir, "models"), c.Models.Dir)
	assert.Equal(t, filepath.Join(dir, "logs/service.log"), c.Log.File)
	assert.Equal(t, filepath.Join(dir, "pitwall.db"), c.Database.DSN)
	assert.True(t, c.Database.RecordPredictions)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown_field.yaml": "http:\n  prot: 1\n",
		"bad_port.yaml":      "http:\n  port: 70000\n",
		"bad_driver.yaml":    "database:\n  driver: mysql\n",
		"no_dsn.yaml":        "database:\n  record_predictions: true\n",
		"not_yaml.yaml":      "http: [",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, int64(DefaultMaxBodyBytes), c.HTTP.MaxBodyBytes)
}
