package logger

import "go.uber.org/zap"

// WithJob returns a logger with job context pre-attached.
// Handlers and the runner use this so every line carries the job ID.
func WithJob(log *zap.SugaredLogger, jobID string) *zap.SugaredLogger {
	return log.With("job_id", jobID)
}

// WithDependency returns a logger with an external-dependency name attached,
// used when reporting call outcomes into a health monitor.
func WithDependency(log *zap.SugaredLogger, name string) *zap.SugaredLogger {
	return log.With("dependency", name)
}
