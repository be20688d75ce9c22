package jobs

import (
	"database/sql"
	"time"

	"github.com/skillvee/mend/errors"
)

// Store handles persistence of jobs in SQLite
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, kind, status, retry_count, last_failure_reason, payload,
	created_at, started_at, completed_at, updated_at`

// CreateJob inserts a new job
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	reason := sql.NullString{String: job.LastFailureReason, Valid: job.LastFailureReason != ""}
	payload := sql.NullString{String: job.Payload, Valid: job.Payload != ""}

	_, err := s.db.Exec(query,
		job.ID,
		job.Kind,
		job.Status,
		job.RetryCount,
		reason,
		payload,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}
	return nil
}

// GetJob retrieves a job by ID. Returns (nil, nil) when no such job exists:
// absence is an expected answer here, not a collaborator failure.
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}
	return job, nil
}

// UpdateJob updates an existing job
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE jobs
		SET kind = ?,
		    status = ?,
		    retry_count = ?,
		    last_failure_reason = ?,
		    payload = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	reason := sql.NullString{String: job.LastFailureReason, Valid: job.LastFailureReason != ""}
	payload := sql.NullString{String: job.Payload, Valid: job.Payload != ""}

	_, err := s.db.Exec(query,
		job.Kind,
		job.Status,
		job.RetryCount,
		reason,
		payload,
		job.StartedAt,
		job.CompletedAt,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update job")
	}
	return nil
}

// ListByStatus returns jobs with the given status, newest first
func (s *Store) ListByStatus(status Status, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.Query(query, status, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows)
}

// TransitionStatus atomically moves a job from one status to another.
// The conditional WHERE clause is the concurrency guard: when two retry
// requests race for the same failed job, exactly one UPDATE matches a row and
// the loser observes ok=false. Returns ok=true iff the transition happened.
func (s *Store) TransitionStatus(id string, from, to Status) (bool, error) {
	now := time.Now()
	var startedAt interface{}
	if to == StatusProcessing {
		startedAt = now
	}

	query := `
		UPDATE jobs
		SET status = ?,
		    started_at = COALESCE(?, started_at),
		    updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, to, startedAt, now, id, from)
	if err != nil {
		return false, errors.Wrap(err, "failed to transition job status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// ForceRetryTransition atomically moves a failed job back to processing with
// its retry history wiped: retry_count reset to 0, failure reason cleared.
// Same conditional-update race protection as TransitionStatus.
func (s *Store) ForceRetryTransition(id string) (bool, error) {
	now := time.Now()

	query := `
		UPDATE jobs
		SET status = ?,
		    retry_count = 0,
		    last_failure_reason = NULL,
		    started_at = ?,
		    completed_at = NULL,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, StatusProcessing, now, now, id, StatusFailed)
	if err != nil {
		return false, errors.Wrap(err, "failed to force-retry job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}
	return rows == 1, nil
}

// MarkFailed records failed execution, advancing the retry count toward the
// auto-retry cap. The increment happens in SQL so concurrent failures cannot
// lose an update. Orphan recovery goes through Job.Fail and UpdateJob instead,
// which leave the count alone.
func (s *Store) MarkFailed(id, reason string) error {
	now := time.Now()

	query := `
		UPDATE jobs
		SET status = ?,
		    retry_count = retry_count + 1,
		    last_failure_reason = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE id = ?
	`

	_, err := s.db.Exec(query, StatusFailed, reason, now, now, id)
	if err != nil {
		return errors.Wrap(err, "failed to mark job failed")
	}
	return nil
}

// FailedJob is one row of the administrative failed-jobs listing: the job
// plus its most recent error-log entry, if any.
type FailedJob struct {
	ID                string     `json:"id"`
	Kind              string     `json:"kind"`
	RetryCount        int        `json:"retry_count"`
	LastFailureReason string     `json:"last_failure_reason,omitempty"`
	CanAutoRetry      bool       `json:"can_auto_retry"`
	CreatedAt         time.Time  `json:"created_at"`
	LastErrorCategory string     `json:"last_error_category,omitempty"`
	LastErrorMessage  string     `json:"last_error_message,omitempty"`
	LastErrorAt       *time.Time `json:"last_error_at,omitempty"`
}

// ListFailedWithLastError returns failed jobs newest first, each joined with
// its most recent error-log entry. CanAutoRetry is computed per row against
// the supplied cap.
func (s *Store) ListFailedWithLastError(maxAutoRetries, limit int) ([]*FailedJob, error) {
	query := `
		SELECT j.id, j.kind, j.retry_count, j.last_failure_reason, j.created_at,
		       e.category, e.message, e.created_at
		FROM jobs j
		LEFT JOIN job_error_logs e ON e.id = (
			SELECT id FROM job_error_logs
			WHERE job_id = j.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		)
		WHERE j.status = ?
		ORDER BY j.created_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, StatusFailed, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list failed jobs")
	}
	defer rows.Close()

	var failed []*FailedJob
	for rows.Next() {
		var fj FailedJob
		var reason, errCategory, errMessage sql.NullString
		var errAt sql.NullTime

		if err := rows.Scan(
			&fj.ID, &fj.Kind, &fj.RetryCount, &reason, &fj.CreatedAt,
			&errCategory, &errMessage, &errAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan failed job")
		}

		fj.LastFailureReason = reason.String
		fj.CanAutoRetry = fj.RetryCount < maxAutoRetries
		fj.LastErrorCategory = errCategory.String
		fj.LastErrorMessage = errMessage.String
		if errAt.Valid {
			t := errAt.Time
			fj.LastErrorAt = &t
		}

		failed = append(failed, &fj)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating failed jobs")
	}

	return failed, nil
}

// CountsByStatus returns the number of jobs in each status
func (s *Store) CountsByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}
	return counts, nil
}

// CleanupOldJobs removes completed/failed jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM jobs
		WHERE status IN (?, ?)
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, StatusCompleted, StatusFailed, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(rows), nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var reason, payload sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.RetryCount,
		&reason,
		&payload,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.LastFailureReason = reason.String
	job.Payload = payload.String
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}
	return jobs, nil
}
