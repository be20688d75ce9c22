package jobs

import (
	"database/sql"
	"time"

	"github.com/skillvee/mend/classify"
	"github.com/skillvee/mend/errors"
)

// ErrorLog is one recorded failure of a job execution
type ErrorLog struct {
	ID        int64             `json:"id"`
	JobID     string            `json:"job_id"`
	Category  classify.Category `json:"category"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	CreatedAt time.Time         `json:"created_at"`
}

// ErrorLogStore handles persistence of per-job failure history.
// The failed-jobs listing joins each job with its most recent entry.
type ErrorLogStore struct {
	db *sql.DB
}

// NewErrorLogStore creates a new error log store
func NewErrorLogStore(db *sql.DB) *ErrorLogStore {
	return &ErrorLogStore{db: db}
}

// Record appends a classified failure for the job
func (s *ErrorLogStore) Record(jobID string, ce *classify.CategorizedError) error {
	query := `
		INSERT INTO job_error_logs (job_id, category, message, retryable, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, jobID, ce.Category, ce.Message, ce.Retryable, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to record job error")
	}
	return nil
}

// LatestForJob returns the most recent error entry for the job, or nil if none
func (s *ErrorLogStore) LatestForJob(jobID string) (*ErrorLog, error) {
	query := `
		SELECT id, job_id, category, message, retryable, created_at
		FROM job_error_logs
		WHERE job_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	var entry ErrorLog
	err := s.db.QueryRow(query, jobID).Scan(
		&entry.ID,
		&entry.JobID,
		&entry.Category,
		&entry.Message,
		&entry.Retryable,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest job error")
	}
	return &entry, nil
}

// ListForJob returns the failure history for a job, newest first
func (s *ErrorLogStore) ListForJob(jobID string, limit int) ([]*ErrorLog, error) {
	query := `
		SELECT id, job_id, category, message, retryable, created_at
		FROM job_error_logs
		WHERE job_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, jobID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job errors")
	}
	defer rows.Close()

	var entries []*ErrorLog
	for rows.Next() {
		var entry ErrorLog
		if err := rows.Scan(
			&entry.ID,
			&entry.JobID,
			&entry.Category,
			&entry.Message,
			&entry.Retryable,
			&entry.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan job error")
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job errors")
	}
	return entries, nil
}
