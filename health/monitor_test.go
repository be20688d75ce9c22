package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillvee/mend/classify"
	"github.com/skillvee/mend/errors"
)

func TestInitialStateConnected(t *testing.T) {
	m := NewMonitor("openai")
	status := m.Status()
	assert.Equal(t, StateConnected, status.Health)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Nil(t, status.LastSuccessTime)
	assert.Nil(t, status.LastError)
}

func TestSingleFailureDegrades(t *testing.T) {
	m := NewMonitor("openai")
	ce := m.RecordFailure(errors.New("connection refused"))

	require.NotNil(t, ce)
	assert.Equal(t, classify.CategoryNetwork, ce.Category)

	status := m.Status()
	assert.Equal(t, StateDegraded, status.Health)
	assert.Equal(t, 1, status.ConsecutiveFailures)
	assert.Equal(t, classify.CategoryNetwork, status.LastError.Category)
}

func TestThreeFailuresDisconnect(t *testing.T) {
	m := NewMonitor("openai")
	for i := 0; i < 3; i++ {
		m.RecordFailure(errors.New("timeout"))
	}

	status := m.Status()
	assert.Equal(t, StateDisconnected, status.Health)
	assert.Equal(t, 3, status.ConsecutiveFailures)
}

func TestSuccessResetsStreak(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m := NewMonitorWithClock("openai", func() time.Time { return now })

	for i := 0; i < 5; i++ {
		m.RecordFailure(errors.New("timeout"))
	}
	m.RecordSuccess()

	status := m.Status()
	assert.Equal(t, StateConnected, status.Health)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Nil(t, status.LastError)
	require.NotNil(t, status.LastSuccessTime)
	assert.Equal(t, now, *status.LastSuccessTime)
}

func TestStatusIsSnapshotCopy(t *testing.T) {
	m := NewMonitor("openai")
	m.RecordFailure(errors.New("timeout"))

	status := m.Status()
	status.ConsecutiveFailures = 99
	status.LastError.Category = classify.CategoryPermission

	fresh := m.Status()
	assert.Equal(t, 1, fresh.ConsecutiveFailures)
	assert.Equal(t, classify.CategoryNetwork, fresh.LastError.Category)
}

func TestReset(t *testing.T) {
	m := NewMonitor("openai")
	m.RecordSuccess()
	m.RecordFailure(errors.New("timeout"))
	m.Reset()

	status := m.Status()
	assert.Equal(t, StateConnected, status.Health)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Nil(t, status.LastSuccessTime)
	assert.Nil(t, status.LastError)
}

func TestConcurrentReporting(t *testing.T) {
	m := NewMonitor("openai")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordFailure(errors.New("timeout"))
		}()
	}
	wg.Wait()

	status := m.Status()
	assert.Equal(t, 50, status.ConsecutiveFailures, "no lost updates under concurrent reporting")
	assert.Equal(t, StateDisconnected, status.Health)
}
