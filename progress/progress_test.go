package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillvee/mend/errors"
	mendtest "github.com/skillvee/mend/internal/testing"
)

func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// kvBackends runs a test against both KV implementations
func kvBackends(t *testing.T) map[string]KV {
	return map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": NewSQLiteKV(mendtest.CreateTestDB(t)),
	}
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(kv, nopLogger())
			data := json.RawMessage(`{"step":3,"answers":["a","b"]}`)

			store.Save("job-1", "interview", data)

			snapshot, err := store.Load("job-1", "interview")
			require.NoError(t, err)
			require.NotNil(t, snapshot)
			assert.Equal(t, []byte(data), []byte(snapshot.Data))
			assert.Equal(t, "job-1", snapshot.JobID)
			assert.Equal(t, "interview", snapshot.WorkflowType)
			assert.False(t, snapshot.LastUpdated.IsZero())
		})
	}
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(kv, nopLogger())

			store.Save("job-1", "interview", json.RawMessage(`{"step":1}`))
			store.Save("job-1", "interview", json.RawMessage(`{"step":2}`))

			snapshot, err := store.Load("job-1", "interview")
			require.NoError(t, err)
			require.NotNil(t, snapshot)
			assert.JSONEq(t, `{"step":2}`, string(snapshot.Data))
		})
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(kv, nopLogger())
			snapshot, err := store.Load("nope", "interview")
			require.NoError(t, err)
			assert.Nil(t, snapshot)
		})
	}
}

func TestClearIsIdempotent(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(kv, nopLogger())
			store.Save("job-1", "interview", json.RawMessage(`{}`))

			require.NoError(t, store.Clear("job-1", "interview"))
			require.NoError(t, store.Clear("job-1", "interview"))

			snapshot, err := store.Load("job-1", "interview")
			require.NoError(t, err)
			assert.Nil(t, snapshot)
		})
	}
}

func TestHasRecentFlipsAtMaxAgeBoundary(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	kv := NewMemoryKV()
	store := NewStoreWithClock(kv, nopLogger(), clock)

	store.Save("job-1", "interview", json.RawMessage(`{}`))

	maxAge := 10 * time.Minute
	assert.True(t, store.HasRecent("job-1", "interview", maxAge))

	now = now.Add(9 * time.Minute)
	assert.True(t, store.HasRecent("job-1", "interview", maxAge))

	now = now.Add(1 * time.Minute) // exactly maxAge elapsed: no longer recent
	assert.False(t, store.HasRecent("job-1", "interview", maxAge))
}

func TestHasRecentMissingSnapshot(t *testing.T) {
	store := NewStore(NewMemoryKV(), nopLogger())
	assert.False(t, store.HasRecent("nope", "interview", time.Hour))
}

func TestSaveSwallowsStorageFailure(t *testing.T) {
	store := NewStore(&failingKV{}, nopLogger())
	// Must not panic or propagate
	store.Save("job-1", "interview", json.RawMessage(`{}`))
	assert.False(t, store.HasRecent("job-1", "interview", time.Hour))
}

func TestCleanupStale(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	for name, kv := range map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": NewSQLiteKV(mendtest.CreateTestDB(t)),
	} {
		t.Run(name, func(t *testing.T) {
			store := NewStoreWithClock(kv, nopLogger(), clock)

			store.Save("old", "interview", json.RawMessage(`{}`))
			now = now.Add(48 * time.Hour)
			store.Save("fresh", "interview", json.RawMessage(`{}`))

			removed, err := store.CleanupStale(24 * time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			snapshot, err := store.Load("fresh", "interview")
			require.NoError(t, err)
			assert.NotNil(t, snapshot)

			snapshot, err = store.Load("old", "interview")
			require.NoError(t, err)
			assert.Nil(t, snapshot)

			now = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
		})
	}
}

func TestMemoryKVCopiesSnapshots(t *testing.T) {
	kv := NewMemoryKV()
	data := json.RawMessage(`{"step":1}`)
	require.NoError(t, kv.Set(&Snapshot{JobID: "j", WorkflowType: "w", LastUpdated: time.Now(), Data: data}))

	// Mutating the original payload must not affect the stored copy
	data[9] = '9'

	stored, err := kv.Get("j", "w")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":1}`, string(stored.Data))
}

// failingKV simulates an unreachable storage layer
type failingKV struct{}

func (f *failingKV) Get(jobID, workflowType string) (*Snapshot, error) {
	return nil, errors.New("storage unreachable")
}
func (f *failingKV) Set(snapshot *Snapshot) error { return errors.New("storage unreachable") }
func (f *failingKV) Delete(jobID, workflowType string) error {
	return errors.New("storage unreachable")
}
func (f *failingKV) DeleteOlderThan(cutoff time.Time) (int, error) {
	return 0, errors.New("storage unreachable")
}

func TestSQLiteKVGetMissing(t *testing.T) {
	kv := NewSQLiteKV(mendtest.CreateTestDB(t))
	snapshot, err := kv.Get("missing", "interview")
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}
