package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillvee/mend/classify"
	"github.com/skillvee/mend/config"
	"github.com/skillvee/mend/health"
	mendtest "github.com/skillvee/mend/internal/testing"
	"github.com/skillvee/mend/jobs"
)

// noopLauncher satisfies jobs.Launcher without starting anything
type noopLauncher struct{}

func (noopLauncher) Launch(jobID string) {}

func newTestServer(t *testing.T) (*MendServer, *jobs.Store) {
	t.Helper()

	conn := mendtest.CreateTestDB(t)
	store := jobs.NewStore(conn)
	errorLogs := jobs.NewErrorLogStore(conn)
	log := zap.NewNop().Sugar()

	cfg := &config.Config{}
	cfg.Server.Port = config.DefaultServerPort
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Retry.MaxAutoRetries = 3

	controller := jobs.NewController(store, noopLauncher{}, cfg.Retry.MaxAutoRetries, log)

	s := NewServer(context.Background(), Deps{
		DB:         conn,
		Config:     cfg,
		Store:      store,
		ErrorLogs:  errorLogs,
		Controller: controller,
		Monitor:    health.NewMonitor("executor"),
		Logger:     log,
	})
	t.Cleanup(func() { s.cancel() })
	return s, store
}

func newFailedJob(t *testing.T, store *jobs.Store, retryCount int, reason string) *jobs.Job {
	t.Helper()

	job, err := jobs.NewJob("video.analysis", "")
	require.NoError(t, err)
	job.Status = jobs.StatusFailed
	job.RetryCount = retryCount
	job.LastFailureReason = reason
	require.NoError(t, store.CreateJob(job))
	return job
}

func postRetry(t *testing.T, s *MendServer, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/retry", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.HandleRetryJob(w, req)
	return w
}

func TestHandleRetryJob(t *testing.T) {
	s, store := newTestServer(t)
	job := newFailedJob(t, store, 1, "connection refused")

	w := postRetry(t, s, `{"job_id":"`+job.ID+`"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var result jobs.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.True(t, result.Success)
	assert.Equal(t, job.ID, result.JobID)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
}

func TestHandleRetryJobMissingID(t *testing.T) {
	s, _ := newTestServer(t)

	w := postRetry(t, s, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRetryJobNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	w := postRetry(t, s, `{"job_id":"no-such-job"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleRetryJobCapExhausted(t *testing.T) {
	s, store := newTestServer(t)
	job := newFailedJob(t, store, 3, "rate limited: too many requests")

	w := postRetry(t, s, `{"job_id":"`+job.ID+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	var result jobs.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.False(t, result.Success)
	assert.Equal(t, jobs.ReasonRetriesExceeded, result.Error)
}

func TestHandleRetryJobForce(t *testing.T) {
	s, store := newTestServer(t)
	job := newFailedJob(t, store, 5, "persistent failure")

	w := postRetry(t, s, `{"job_id":"`+job.ID+`","force":true}`)
	assert.Equal(t, http.StatusOK, w.Code)

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestHandleRetryJobInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	w := postRetry(t, s, `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleRetryJobMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/retry", nil)
	w := httptest.NewRecorder()
	s.HandleRetryJob(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleFailedJobs(t *testing.T) {
	s, store := newTestServer(t)
	errorLogs := jobs.NewErrorLogStore(s.db)

	job := newFailedJob(t, store, 1, "connection refused")
	ce := classify.Classify(classify.Tagf(classify.CategoryNetwork, "connection refused"))
	require.NoError(t, errorLogs.Record(job.ID, ce))

	newFailedJob(t, store, 3, "exhausted")

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/failed", nil)
	w := httptest.NewRecorder()
	s.HandleFailedJobs(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		FailedJobs []*jobs.FailedJob `json:"failed_jobs"`
		Count      int               `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.FailedJobs, 2)

	for _, fj := range resp.FailedJobs {
		if fj.ID == job.ID {
			assert.True(t, fj.CanAutoRetry)
			assert.Equal(t, string(classify.CategoryNetwork), fj.LastErrorCategory)
		} else {
			assert.False(t, fj.CanAutoRetry)
		}
	}
}

func TestHandleFailedJobsEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/failed", nil)
	w := httptest.NewRecorder()
	s.HandleFailedJobs(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, float64(0), resp["count"])
	assert.NotNil(t, resp["failed_jobs"])
}

func TestHandleJob(t *testing.T) {
	s, store := newTestServer(t)
	job := newFailedJob(t, store, 1, "timeout")

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
	w := httptest.NewRecorder()
	s.HandleJob(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Job    *jobs.Job       `json:"job"`
		Errors []*jobs.ErrorLog `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, job.ID, resp.Job.ID)
	assert.Empty(t, resp.Errors)
}

func TestHandleJobNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/no-such-job", nil)
	w := httptest.NewRecorder()
	s.HandleJob(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleJobMissingID(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/", nil)
	w := httptest.NewRecorder()
	s.HandleJob(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.HandleHealth(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleStatus(t *testing.T) {
	s, store := newTestServer(t)
	newFailedJob(t, store, 1, "timeout")

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.HandleStatus(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "executor", resp["dependency"])
	assert.NotNil(t, resp["health"])
	assert.NotNil(t, resp["jobs"])
}
