package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mendtest "github.com/skillvee/mend/internal/testing"
)

// recordingLauncher captures Launch calls instead of executing anything
type recordingLauncher struct {
	mu       sync.Mutex
	launched []string
}

func (l *recordingLauncher) Launch(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, jobID)
}

func (l *recordingLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

func newTestController(t *testing.T) (*Controller, *Store, *recordingLauncher) {
	t.Helper()

	conn := mendtest.CreateTestDB(t)
	store := NewStore(conn)
	launcher := &recordingLauncher{}
	ctrl := NewController(store, launcher, 3, zap.NewNop().Sugar())
	return ctrl, store, launcher
}

func TestRetryEligibleJob(t *testing.T) {
	ctrl, store, launcher := newTestController(t)
	job := createFailedJob(t, store, 1, "connection refused")

	result, err := ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, CodeOK, result.Code)
	assert.Equal(t, job.ID, result.JobID)
	assert.Equal(t, 1, launcher.count())

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	// Retry count advances on failure outcomes, not on launch
	assert.Equal(t, 1, got.RetryCount)
}

func TestRetryEmptyJobID(t *testing.T) {
	ctrl, _, launcher := newTestController(t)

	result, err := ctrl.Retry(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeInvalidRequest, result.Code)
	assert.Equal(t, ReasonJobIDRequired, result.Error)
	assert.Zero(t, launcher.count())
}

func TestRetryUnknownJob(t *testing.T) {
	ctrl, _, launcher := newTestController(t)

	result, err := ctrl.Retry(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeNotFound, result.Code)
	assert.Equal(t, ReasonJobNotFound, result.Error)
	assert.Zero(t, launcher.count())
}

func TestRetryNonFailedJob(t *testing.T) {
	ctrl, store, launcher := newTestController(t)

	job, err := NewJob("doc.parse", "")
	require.NoError(t, err)
	job.Status = StatusProcessing
	require.NoError(t, store.CreateJob(job))

	result, err := ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeRejected, result.Code)
	assert.Equal(t, ReasonNotEligible, result.Error)
	assert.Zero(t, launcher.count())
}

func TestRetryCapExhausted(t *testing.T) {
	ctrl, store, launcher := newTestController(t)
	job := createFailedJob(t, store, 3, "rate limited: too many requests")

	result, err := ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeRejected, result.Code)
	assert.Equal(t, ReasonRetriesExceeded, result.Error)
	assert.Zero(t, launcher.count())

	// Rejection leaves the job untouched
	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, "rate limited: too many requests", got.LastFailureReason)
}

func TestRetryConcurrentRequests(t *testing.T) {
	ctrl, store, launcher := newTestController(t)
	job := createFailedJob(t, store, 0, "timeout")

	first, err := ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, first.Success)

	// The job is already Processing; the second request loses the race
	second, err := ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, CodeRejected, second.Code)
	assert.Equal(t, 1, launcher.count())
}

func TestForceRetryResetsRetryCount(t *testing.T) {
	ctrl, store, launcher := newTestController(t)
	job := createFailedJob(t, store, 5, "persistent failure")

	result, err := ctrl.ForceRetry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, CodeOK, result.Code)
	assert.Equal(t, 1, launcher.count())

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastFailureReason)
}

func TestForceRetryNonFailedJob(t *testing.T) {
	ctrl, store, launcher := newTestController(t)

	job, err := NewJob("doc.parse", "")
	require.NoError(t, err)
	job.Status = StatusCompleted
	require.NoError(t, store.CreateJob(job))

	result, err := ctrl.ForceRetry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeRejected, result.Code)
	assert.Zero(t, launcher.count())
}

func TestForceRetryUnknownJob(t *testing.T) {
	ctrl, _, _ := newTestController(t)

	result, err := ctrl.ForceRetry(context.Background(), "no-such-job")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, CodeNotFound, result.Code)
}

func TestListFailed(t *testing.T) {
	ctrl, store, _ := newTestController(t)

	createFailedJob(t, store, 1, "timeout")
	createFailedJob(t, store, 3, "exhausted")

	failed, err := ctrl.ListFailed(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, failed, 2)
}

func TestSetMaxAutoRetries(t *testing.T) {
	ctrl, store, _ := newTestController(t)
	job := createFailedJob(t, store, 3, "exhausted")

	result, err := ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	ctrl.SetMaxAutoRetries(5)
	assert.Equal(t, 5, ctrl.MaxAutoRetries())

	result, err = ctrl.Retry(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
}
