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
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Download.Threads)
	assert.GreaterOrEqual(t, cfg.Download.ThreadBudget, 1)
	assert.Equal(t, 8*1024, cfg.Download.GetBufferSize())
	assert.Zero(t, cfg.Download.GetBandwidthLimit())
	assert.Zero(t, cfg.Download.GetTimeout())
	assert.Equal(t, 2, cfg.Download.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.HTTP.GetReadTimeout())
	assert.Equal(t, 720*time.Hour, cfg.Maintenance.GetRecordRetention())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
download:
  root_dir: /tmp/games
  threads: 16
  thread_budget: 4
  bandwidth_limit_kb: 256
  min_free_space_mb: 10
  timeout: 45s
  fail_fast: true
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/games", cfg.Download.RootDir)
	assert.Equal(t, 16, cfg.Download.Threads)
	assert.Equal(t, 4, cfg.Download.ThreadBudget)
	assert.Equal(t, int64(256*1024), cfg.Download.GetBandwidthLimit())
	assert.Equal(t, int64(10*1024*1024), cfg.Download.GetMinFreeSpace())
	assert.Equal(t, 45*time.Second, cfg.Download.GetTimeout())
	assert.True(t, cfg.Download.FailFast)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LAUNCHKIT_DOWNLOAD_THREADS", "3")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Download.Threads)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero threads", func(c *Config) { c.Download.Threads = 0 }},
		{"too many threads", func(c *Config) { c.Download.Threads = 65 }},
		{"zero budget", func(c *Config) { c.Download.ThreadBudget = 0 }},
		{"empty root", func(c *Config) { c.Download.RootDir = "" }},
		{"negative bandwidth", func(c *Config) { c.Download.BandwidthLimitKB = -1 }},
		{"negative free space", func(c *Config) { c.Download.MinFreeSpaceMB = -1 }},
		{"too many retries", func(c *Config) { c.Download.MaxRetries = 11 }},
		{"bad timeout", func(c *Config) { c.Download.Timeout = "soon" }},
		{"bad retention", func(c *Config) { c.Maintenance.RecordRetention = "forever" }},
		{"half admin credentials", func(c *Config) { c.HTTP.AdminUsername = "admin" }},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
