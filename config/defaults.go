package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultDirPermissions is used when creating the ~/.mend directory
const DefaultDirPermissions = 0o755

// SetDefaults registers default values on a Viper instance.
// The retry defaults mirror the values the platform shipped with before they
// became configurable: auto-retry cap of 3, 1s base delay, 30s delay ceiling.
func SetDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	v.SetDefault("database.path", filepath.Join(homeDir, ".mend", "mend.db"))

	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("retry.max_auto_retries", 3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 1000)
	v.SetDefault("retry.max_delay_ms", 30000)

	v.SetDefault("runner.max_launches_per_minute", 30)

	v.SetDefault("cleanup.interval_minutes", 60)
	v.SetDefault("cleanup.job_retention_hours", 168)
	v.SetDefault("cleanup.progress_max_age_hours", 24)
}
