package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Download    DownloadConfig    `mapstructure:"download"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// DownloadConfig contains download settings
type DownloadConfig struct {
	RootDir             string `mapstructure:"root_dir"`
	Threads             int    `mapstructure:"threads"`
	ThreadBudget        int    `mapstructure:"thread_budget"`
	BufferSizeKB        int    `mapstructure:"buffer_size_kb"`
	UserAgent           string `mapstructure:"user_agent"`
	Timeout             string `mapstructure:"timeout"`
	BandwidthLimitKB    int    `mapstructure:"bandwidth_limit_kb"` // 0 = unlimited
	MinFreeSpaceMB      int    `mapstructure:"min_free_space_mb"`
	FailFast            bool   `mapstructure:"fail_fast"`
	MaxRetries          int    `mapstructure:"max_retries"`
	ProgressLogInterval string `mapstructure:"progress_log_interval"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
	// AdminUsername and AdminPassword protect job submission, cancellation
	// and the file browser. Both empty leaves them open.
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
}

// MaintenanceConfig contains history maintenance settings
type MaintenanceConfig struct {
	CleanupInterval string `mapstructure:"cleanup_interval"`
	RecordRetention string `mapstructure:"record_retention"`
}

// Load loads configuration from the specified file path. An empty path
// yields the defaults, overridden by LAUNCHKIT_* environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("launchkit")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("download.root_dir", ".")
	v.SetDefault("download.threads", 8)
	v.SetDefault("download.thread_budget", defaultThreadBudget())
	v.SetDefault("download.buffer_size_kb", 8)
	v.SetDefault("download.user_agent", "launchkit/1.0")
	v.SetDefault("download.timeout", "0s")
	v.SetDefault("download.bandwidth_limit_kb", 0)
	v.SetDefault("download.min_free_space_mb", 512)
	v.SetDefault("download.fail_fast", false)
	v.SetDefault("download.max_retries", 2)
	v.SetDefault("download.progress_log_interval", "2s")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.bind_addr", "127.0.0.1:8420")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.admin_username", "")
	v.SetDefault("http.admin_password", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.record_retention", "720h")
}

// defaultThreadBudget is the number of logical CPUs, at least 1
func defaultThreadBudget() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		return 4
	}
	if n > 128 {
		return 128
	}
	return n
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate download config
	if c.Download.RootDir == "" {
		return fmt.Errorf("download.root_dir is required")
	}
	if c.Download.Threads < 1 || c.Download.Threads > 64 {
		return fmt.Errorf("download.threads must be between 1 and 64")
	}
	if c.Download.ThreadBudget < 1 || c.Download.ThreadBudget > 128 {
		return fmt.Errorf("download.thread_budget must be between 1 and 128")
	}
	if c.Download.BufferSizeKB <= 0 {
		return fmt.Errorf("download.buffer_size_kb must be positive")
	}
	if c.Download.BandwidthLimitKB < 0 {
		return fmt.Errorf("download.bandwidth_limit_kb cannot be negative")
	}
	if c.Download.MinFreeSpaceMB < 0 {
		return fmt.Errorf("download.min_free_space_mb cannot be negative")
	}
	if c.Download.MaxRetries < 0 || c.Download.MaxRetries > 10 {
		return fmt.Errorf("download.max_retries must be between 0 and 10")
	}

	durations := map[string]string{
		"download.timeout":               c.Download.Timeout,
		"download.progress_log_interval": c.Download.ProgressLogInterval,
		"http.read_timeout":              c.HTTP.ReadTimeout,
		"http.write_timeout":             c.HTTP.WriteTimeout,
		"http.idle_timeout":              c.HTTP.IdleTimeout,
		"maintenance.cleanup_interval":   c.Maintenance.CleanupInterval,
		"maintenance.record_retention":   c.Maintenance.RecordRetention,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if (c.HTTP.AdminUsername == "") != (c.HTTP.AdminPassword == "") {
		return fmt.Errorf("http.admin_username and http.admin_password must be set together")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetTimeout returns the per-request timeout, 0 meaning none
func (c *DownloadConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// GetBufferSize returns the read buffer size in bytes
func (c *DownloadConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 8 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetBandwidthLimit returns the bandwidth limit in bytes per second
func (c *DownloadConfig) GetBandwidthLimit() int64 {
	return int64(c.BandwidthLimitKB) * 1024
}

// GetMinFreeSpace returns the minimum free space in bytes
func (c *DownloadConfig) GetMinFreeSpace() int64 {
	return int64(c.MinFreeSpaceMB) * 1024 * 1024
}

// GetProgressLogInterval returns the minimum interval between progress logs
func (c *DownloadConfig) GetProgressLogInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProgressLogInterval)
	if d == 0 {
		return 2 * time.Second
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetCleanupInterval returns the history cleanup interval
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}

// GetRecordRetention returns how long closed records are kept
func (c *MaintenanceConfig) GetRecordRetention() time.Duration {
	d, _ := time.ParseDuration(c.RecordRetention)
	if d == 0 {
		return 30 * 24 * time.Hour
	}
	return d
}
