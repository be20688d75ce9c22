package server

import (
	"net/http"
	"strings"

	"github.com/skillvee/mend/jobs"
)

const (
	// Default and max limits for failed-job listing queries
	defaultJobLimit = 50
	maxJobLimit     = 200
)

// retryRequest is the body of POST /api/jobs/retry
type retryRequest struct {
	JobID string `json:"job_id"`
	Force bool   `json:"force"`
}

// statusForCode maps a controller outcome to an HTTP status
func statusForCode(code jobs.Code) int {
	switch code {
	case jobs.CodeOK:
		return http.StatusOK
	case jobs.CodeInvalidRequest:
		return http.StatusBadRequest
	case jobs.CodeNotFound:
		return http.StatusNotFound
	case jobs.CodeRejected:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// HandleRetryJob handles POST /api/jobs/retry.
// The body carries the job ID and an optional force flag; force bypasses the
// auto-retry cap and resets the job's retry history.
func (s *MendServer) HandleRetryJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req retryRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	s.logger.Infow("Retry requested",
		"job_id", req.JobID,
		"force", req.Force,
		"remote", r.RemoteAddr,
	)

	var result *jobs.Result
	var err error
	if req.Force {
		result, err = s.controller.ForceRetry(r.Context(), req.JobID)
	} else {
		result, err = s.controller.Retry(r.Context(), req.JobID)
	}
	if err != nil {
		s.logger.Errorw("Retry failed", "job_id", req.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retry job")
		return
	}

	writeJSON(w, statusForCode(result.Code), result)
}

// HandleFailedJobs handles GET /api/jobs/failed, returning failed jobs
// newest first with each job's most recent recorded error.
func (s *MendServer) HandleFailedJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := parseIntQueryParam(r, "limit", defaultJobLimit, 1, maxJobLimit)

	failed, err := s.controller.ListFailed(r.Context(), limit)
	if err != nil {
		s.logger.Errorw("Failed to list failed jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list failed jobs")
		return
	}

	if failed == nil {
		failed = []*jobs.FailedJob{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failed_jobs": failed,
		"count":       len(failed),
	})
}

// HandleJob handles GET /api/jobs/{id}, returning the job together with its
// recorded failure history.
func (s *MendServer) HandleJob(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusBadRequest, "Missing job ID")
		return
	}

	job, err := s.store.GetJob(jobID)
	if err != nil {
		s.logger.Errorw("Failed to get job", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}

	history, err := s.errorLogs.ListForJob(jobID, 20)
	if err != nil {
		s.logger.Warnw("Failed to load job error history", "job_id", jobID, "error", err)
	}
	if history == nil {
		history = []*jobs.ErrorLog{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":    job,
		"errors": history,
	})
}

// HandleHealth handles GET /health for liveness probes
func (s *MendServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
