// Package config defines and loads the mend configuration.
//
// Configuration is read from mend.toml via Viper, with environment variable
// overrides under the MEND_ prefix. Policy knobs that the original platform
// hard-coded (retry cap, backoff delays) live here so operators can tune them
// without a rebuild; the defaults preserve observed behavior.
package config

// Config represents the core mend configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the administrative HTTP server
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RetryConfig configures automatic retry policy for failed jobs.
// MaxAutoRetries gates JobRetryController; the delay fields shape the
// exponential backoff used by retry.Do around external calls.
type RetryConfig struct {
	MaxAutoRetries int `mapstructure:"max_auto_retries"` // cap on automatic retries per job (default: 3)
	MaxAttempts    int `mapstructure:"max_attempts"`     // attempts per retry.Do invocation (default: 3)
	BaseDelayMS    int `mapstructure:"base_delay_ms"`    // first backoff delay (default: 1000)
	MaxDelayMS     int `mapstructure:"max_delay_ms"`     // backoff ceiling before jitter (default: 30000)
}

// RunnerConfig configures asynchronous job execution
type RunnerConfig struct {
	MaxLaunchesPerMinute int `mapstructure:"max_launches_per_minute"` // executor launch rate cap (default: 30)
}

// CleanupConfig configures background cleanup of terminal jobs and stale progress
type CleanupConfig struct {
	IntervalMinutes     int `mapstructure:"interval_minutes"`       // sweep period (default: 60, 0 disables)
	JobRetentionHours   int `mapstructure:"job_retention_hours"`    // keep completed/failed jobs this long (default: 168)
	ProgressMaxAgeHours int `mapstructure:"progress_max_age_hours"` // drop progress snapshots older than this (default: 24)
}

// Default server port constants
const (
	DefaultServerPort = 8710
)
