// Package health tracks rolling connection health for one external
// dependency. A single Monitor instance is shared by every caller reporting
// outcomes for the same dependency, so all mutation is serialized behind a
// mutex; lost updates under concurrent reporting would make the health state
// lie about the dependency.
package health

import (
	"sync"
	"time"

	"github.com/skillvee/mend/classify"
)

// State is the three-level rolling health indicator
type State string

const (
	StateConnected    State = "connected"
	StateDegraded     State = "degraded"
	StateDisconnected State = "disconnected"
)

// disconnectedThreshold is the consecutive-failure count at which the
// dependency is considered down rather than flaky.
const disconnectedThreshold = 3

// Status is a point-in-time snapshot of a monitor. Callers receive copies and
// cannot mutate monitor internals through one.
type Status struct {
	Health              State                      `json:"health"`
	LastSuccessTime     *time.Time                 `json:"last_success_time,omitempty"`
	ConsecutiveFailures int                        `json:"consecutive_failures"`
	LastError           *classify.CategorizedError `json:"last_error,omitempty"`
}

// Monitor tracks recent success/failure history for one external dependency
type Monitor struct {
	mu                  sync.Mutex
	name                string
	consecutiveFailures int
	lastSuccessTime     *time.Time
	lastError           *classify.CategorizedError
	timeNow             func() time.Time // Injectable for testing
}

// NewMonitor creates a monitor for the named dependency
func NewMonitor(name string) *Monitor {
	return NewMonitorWithClock(name, time.Now)
}

// NewMonitorWithClock creates a monitor with an injectable clock (for testing)
func NewMonitorWithClock(name string, timeNow func() time.Time) *Monitor {
	return &Monitor{
		name:    name,
		timeNow: timeNow,
	}
}

// Name returns the dependency name this monitor tracks
func (m *Monitor) Name() string {
	return m.name
}

// RecordSuccess resets the failure streak and marks the dependency connected
func (m *Monitor) RecordSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.timeNow()
	m.consecutiveFailures = 0
	m.lastSuccessTime = &now
	m.lastError = nil
}

// RecordFailure classifies the error, extends the failure streak, and returns
// the classification so the caller can act on it without reclassifying.
func (m *Monitor) RecordFailure(err error) *classify.CategorizedError {
	ce := classify.Classify(err)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures++
	m.lastError = ce

	return ce
}

// Status returns a snapshot copy of the current state
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Health:              healthFor(m.consecutiveFailures),
		ConsecutiveFailures: m.consecutiveFailures,
	}
	if m.lastSuccessTime != nil {
		t := *m.lastSuccessTime
		status.LastSuccessTime = &t
	}
	if m.lastError != nil {
		ce := *m.lastError
		status.LastError = &ce
	}
	return status
}

// Reset returns the monitor to its initial connected state, discarding history
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveFailures = 0
	m.lastSuccessTime = nil
	m.lastError = nil
}

// healthFor derives the health state from the failure streak.
// Health is a pure function of consecutiveFailures, never stored.
func healthFor(consecutiveFailures int) State {
	switch {
	case consecutiveFailures == 0:
		return StateConnected
	case consecutiveFailures < disconnectedThreshold:
		return StateDegraded
	default:
		return StateDisconnected
	}
}
