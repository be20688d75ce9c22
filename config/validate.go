package config

import "github.com/skillvee/mend/errors"

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior (a zero-attempt retry loop never runs anything).
func (c *Config) Validate() error {
	if c.Retry.MaxAutoRetries < 0 {
		return errors.Newf("retry.max_auto_retries must be >= 0, got %d", c.Retry.MaxAutoRetries)
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.Newf("retry.max_attempts must be >= 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelayMS <= 0 {
		return errors.Newf("retry.base_delay_ms must be positive, got %d", c.Retry.BaseDelayMS)
	}
	if c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return errors.Newf("retry.max_delay_ms (%d) must be >= retry.base_delay_ms (%d)",
			c.Retry.MaxDelayMS, c.Retry.BaseDelayMS)
	}
	if c.Runner.MaxLaunchesPerMinute < 1 {
		return errors.Newf("runner.max_launches_per_minute must be >= 1, got %d", c.Runner.MaxLaunchesPerMinute)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port out of range: %d", c.Server.Port)
	}
	if c.Cleanup.IntervalMinutes < 0 {
		return errors.Newf("cleanup.interval_minutes must be >= 0, got %d", c.Cleanup.IntervalMinutes)
	}
	return nil
}
