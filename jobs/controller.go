package jobs

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/skillvee/mend/logger"
)

// Rejection reasons returned to administrative callers. These are policy
// decisions, not external failures, so they travel as structured results
// rather than errors.
const (
	ReasonJobIDRequired   = "job_id is required"
	ReasonJobNotFound     = "job not found"
	ReasonNotEligible     = "not eligible for retry"
	ReasonRetriesExceeded = "maximum retry attempts exceeded"
)

// Code generalizes a retry outcome for transport mapping
type Code string

const (
	CodeOK             Code = "OK"
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeNotFound       Code = "NOT_FOUND"
	CodeRejected       Code = "REJECTED"
)

// Result is the outcome of a retry or force-retry request
type Result struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id,omitempty"`
	Code    Code   `json:"-"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Launcher starts asynchronous execution of a job. The controller only gates
// whether a new attempt may begin; the launcher (and its completion path)
// owns updating the job to Completed/Failed afterwards.
type Launcher interface {
	Launch(jobID string)
}

// Controller applies retry policy to persisted jobs. Preconditions are
// checked in order and violations come back as structured rejections;
// only unexpected store failures surface as errors.
type Controller struct {
	store          *Store
	launcher       Launcher
	maxAutoRetries atomic.Int64
	log            *zap.SugaredLogger
}

// NewController creates a retry controller with the given auto-retry cap
func NewController(store *Store, launcher Launcher, maxAutoRetries int, log *zap.SugaredLogger) *Controller {
	c := &Controller{
		store:    store,
		launcher: launcher,
		log:      log,
	}
	c.maxAutoRetries.Store(int64(maxAutoRetries))
	return c
}

// MaxAutoRetries returns the current automatic-retry cap
func (c *Controller) MaxAutoRetries() int {
	return int(c.maxAutoRetries.Load())
}

// SetMaxAutoRetries updates the cap; wired to config hot reload
func (c *Controller) SetMaxAutoRetries(n int) {
	c.maxAutoRetries.Store(int64(n))
}

// Retry starts a new attempt for a failed job if it is still under the
// auto-retry cap. On acceptance the job moves to Processing and the launcher
// is invoked asynchronously; the call returns without waiting for the
// execution outcome.
func (c *Controller) Retry(ctx context.Context, jobID string) (*Result, error) {
	if jobID == "" {
		return &Result{Success: false, Code: CodeInvalidRequest, Error: ReasonJobIDRequired}, nil
	}

	job, err := c.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &Result{Success: false, JobID: jobID, Code: CodeNotFound, Error: ReasonJobNotFound}, nil
	}
	if job.Status != StatusFailed {
		return &Result{Success: false, JobID: jobID, Code: CodeRejected, Error: ReasonNotEligible}, nil
	}
	if !job.CanAutoRetry(c.MaxAutoRetries()) {
		// Job left unmodified; the operator can still force-retry
		return &Result{Success: false, JobID: jobID, Code: CodeRejected, Error: ReasonRetriesExceeded}, nil
	}

	// Conditional transition: if a concurrent retry already moved the job
	// out of Failed, this request loses the race and is rejected.
	ok, err := c.store.TransitionStatus(jobID, StatusFailed, StatusProcessing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Success: false, JobID: jobID, Code: CodeRejected, Error: ReasonNotEligible}, nil
	}

	logger.WithJob(c.log, jobID).Infow("Retry accepted",
		"retry_count", job.RetryCount,
		"max_auto_retries", c.MaxAutoRetries(),
	)

	c.launcher.Launch(jobID)

	return &Result{
		Success: true,
		JobID:   jobID,
		Code:    CodeOK,
		Message: "retry started",
	}, nil
}

// ForceRetry starts a new attempt regardless of the retry-count cap,
// resetting retry history first. Intended for an operator who has identified
// and fixed the root cause.
func (c *Controller) ForceRetry(ctx context.Context, jobID string) (*Result, error) {
	if jobID == "" {
		return &Result{Success: false, Code: CodeInvalidRequest, Error: ReasonJobIDRequired}, nil
	}

	job, err := c.store.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &Result{Success: false, JobID: jobID, Code: CodeNotFound, Error: ReasonJobNotFound}, nil
	}
	if job.Status != StatusFailed {
		return &Result{Success: false, JobID: jobID, Code: CodeRejected, Error: ReasonNotEligible}, nil
	}

	ok, err := c.store.ForceRetryTransition(jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{Success: false, JobID: jobID, Code: CodeRejected, Error: ReasonNotEligible}, nil
	}

	logger.WithJob(c.log, jobID).Infow("Force retry accepted",
		"previous_retry_count", job.RetryCount,
	)

	c.launcher.Launch(jobID)

	return &Result{
		Success: true,
		JobID:   jobID,
		Code:    CodeOK,
		Message: "force retry started",
	}, nil
}

// ListFailed returns failed jobs newest first, each annotated with its most
// recent error-log entry and whether it is still under the auto-retry cap.
func (c *Controller) ListFailed(ctx context.Context, limit int) ([]*FailedJob, error) {
	return c.store.ListFailedWithLastError(c.MaxAutoRetries(), limit)
}
