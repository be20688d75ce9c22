package progress

import (
	"database/sql"
	"time"

	"github.com/skillvee/mend/errors"
)

// SQLiteKV is a durable KV backend over the session_progress table
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV creates a SQLite-backed progress KV
func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db}
}

// Get returns the stored snapshot, or nil if absent
func (s *SQLiteKV) Get(jobID, workflowType string) (*Snapshot, error) {
	query := `
		SELECT job_id, workflow_type, data, last_updated
		FROM session_progress
		WHERE job_id = ? AND workflow_type = ?
	`

	var snapshot Snapshot
	var data string
	err := s.db.QueryRow(query, jobID, workflowType).Scan(
		&snapshot.JobID,
		&snapshot.WorkflowType,
		&data,
		&snapshot.LastUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session progress")
	}

	snapshot.Data = []byte(data)
	return &snapshot, nil
}

// Set upserts the snapshot keyed by (job_id, workflow_type)
func (s *SQLiteKV) Set(snapshot *Snapshot) error {
	query := `
		INSERT INTO session_progress (job_id, workflow_type, data, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id, workflow_type) DO UPDATE SET
			data = excluded.data,
			last_updated = excluded.last_updated
	`

	_, err := s.db.Exec(query,
		snapshot.JobID,
		snapshot.WorkflowType,
		string(snapshot.Data),
		snapshot.LastUpdated,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save session progress")
	}
	return nil
}

// Delete removes the record; no-op if absent
func (s *SQLiteKV) Delete(jobID, workflowType string) error {
	_, err := s.db.Exec(
		`DELETE FROM session_progress WHERE job_id = ? AND workflow_type = ?`,
		jobID, workflowType,
	)
	if err != nil {
		return errors.Wrap(err, "failed to clear session progress")
	}
	return nil
}

// DeleteOlderThan removes records last updated before cutoff
func (s *SQLiteKV) DeleteOlderThan(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(
		`DELETE FROM session_progress WHERE last_updated < ?`, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup session progress")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}
