// Package jobs applies retry policy to persisted processing jobs.
//
// A Job is a unit of asynchronous, externally-dependent work (video analysis,
// live-call session, document parse) with a persisted status and retry
// history. This package owns the status transitions, the bounded-retry gate,
// the administrative force-retry override, and the failure bookkeeping that
// feeds operator tooling.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/skillvee/mend/errors"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job represents one asynchronous processing job.
// Pending→Processing→{Completed,Failed}; Failed→Processing happens only
// through an explicit retry or force-retry call, never automatically.
type Job struct {
	ID                string     `json:"id"`
	Kind              string     `json:"kind"` // e.g. "video.analysis", "doc.parse"
	Status            Status     `json:"status"`
	RetryCount        int        `json:"retry_count"`
	LastFailureReason string     `json:"last_failure_reason,omitempty"`
	Payload           string     `json:"payload,omitempty"` // kind-specific data, opaque here
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewJob creates a pending job of the given kind
func NewJob(kind, payload string) (*Job, error) {
	if kind == "" {
		return nil, errors.New("kind cannot be empty")
	}

	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanAutoRetry reports whether the job is still under the automatic-retry
// cap. Derived from RetryCount on every call, never persisted separately.
func (j *Job) CanAutoRetry(maxAutoRetries int) bool {
	return j.RetryCount < maxAutoRetries
}

// Start marks the job as processing
func (j *Job) Start() {
	now := time.Now()
	j.Status = StatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job as completed
func (j *Job) Complete() {
	now := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job as failed with a failure reason
func (j *Job) Fail(reason string) {
	now := time.Now()
	j.Status = StatusFailed
	j.LastFailureReason = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}
