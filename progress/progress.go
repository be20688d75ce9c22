// Package progress persists resumable snapshots of multi-step client
// workflows (interview sessions, upload wizards) keyed by job and workflow
// type. Persistence is best-effort: progress only supports resumability, not
// correctness, so a failing store must never take the workflow down with it.
package progress

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Snapshot is one saved progress record. The Data payload is opaque to this
// package; workflows own its structure.
type Snapshot struct {
	JobID        string          `json:"job_id"`
	WorkflowType string          `json:"workflow_type"`
	LastUpdated  time.Time       `json:"last_updated"`
	Data         json.RawMessage `json:"data"`
}

// KV is the pluggable storage behind a Store. The in-memory implementation
// serves tests and single-process setups; the SQLite implementation survives
// restarts. Get returns (nil, nil) when no record exists.
type KV interface {
	Get(jobID, workflowType string) (*Snapshot, error)
	Set(snapshot *Snapshot) error
	Delete(jobID, workflowType string) error
	DeleteOlderThan(cutoff time.Time) (int, error)
}

// Store saves and restores workflow progress through a KV backend
type Store struct {
	kv      KV
	logger  *zap.SugaredLogger
	timeNow func() time.Time
}

// NewStore creates a progress store over the given KV backend
func NewStore(kv KV, logger *zap.SugaredLogger) *Store {
	return NewStoreWithClock(kv, logger, time.Now)
}

// NewStoreWithClock creates a progress store with an injectable clock (for testing)
func NewStoreWithClock(kv KV, logger *zap.SugaredLogger, timeNow func() time.Time) *Store {
	return &Store{kv: kv, logger: logger, timeNow: timeNow}
}

// Save upserts the snapshot for (jobID, workflowType), stamping LastUpdated
// with the current time. Storage failures are logged and swallowed.
func (s *Store) Save(jobID, workflowType string, data json.RawMessage) {
	snapshot := &Snapshot{
		JobID:        jobID,
		WorkflowType: workflowType,
		LastUpdated:  s.timeNow(),
		Data:         data,
	}

	if err := s.kv.Set(snapshot); err != nil {
		s.logger.Warnw("Failed to save workflow progress",
			"job_id", jobID,
			"workflow_type", workflowType,
			"error", err,
		)
	}
}

// Load returns the saved snapshot, or nil if none exists
func (s *Store) Load(jobID, workflowType string) (*Snapshot, error) {
	return s.kv.Get(jobID, workflowType)
}

// HasRecent reports whether a snapshot exists and is younger than maxAge.
// The max age is always caller-supplied; staleness policy is not stored.
func (s *Store) HasRecent(jobID, workflowType string, maxAge time.Duration) bool {
	snapshot, err := s.kv.Get(jobID, workflowType)
	if err != nil {
		s.logger.Warnw("Failed to load workflow progress",
			"job_id", jobID,
			"workflow_type", workflowType,
			"error", err,
		)
		return false
	}
	if snapshot == nil {
		return false
	}
	return s.timeNow().Sub(snapshot.LastUpdated) < maxAge
}

// Clear deletes the snapshot for (jobID, workflowType); no-op if absent
func (s *Store) Clear(jobID, workflowType string) error {
	return s.kv.Delete(jobID, workflowType)
}

// CleanupStale deletes snapshots older than maxAge and returns how many were removed
func (s *Store) CleanupStale(maxAge time.Duration) (int, error) {
	return s.kv.DeleteOlderThan(s.timeNow().Add(-maxAge))
}
