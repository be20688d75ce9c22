package progress

import (
	"sync"
	"time"
)

// MemoryKV is an in-memory KV backend. Snapshots are copied on the way in and
// out so callers cannot mutate stored state through retained pointers.
type MemoryKV struct {
	mu        sync.RWMutex
	snapshots map[memoryKey]*Snapshot
}

type memoryKey struct {
	jobID        string
	workflowType string
}

// NewMemoryKV creates an empty in-memory backend
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		snapshots: make(map[memoryKey]*Snapshot),
	}
}

// Get returns a copy of the stored snapshot, or nil if absent
func (m *MemoryKV) Get(jobID, workflowType string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[memoryKey{jobID, workflowType}]
	if !ok {
		return nil, nil
	}
	return copySnapshot(snapshot), nil
}

// Set stores a copy of the snapshot, overwriting any existing record
func (m *MemoryKV) Set(snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[memoryKey{snapshot.JobID, snapshot.WorkflowType}] = copySnapshot(snapshot)
	return nil
}

// Delete removes the record; no-op if absent
func (m *MemoryKV) Delete(jobID, workflowType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snapshots, memoryKey{jobID, workflowType})
	return nil
}

// DeleteOlderThan removes all records last updated before cutoff
func (m *MemoryKV) DeleteOlderThan(cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, snapshot := range m.snapshots {
		if snapshot.LastUpdated.Before(cutoff) {
			delete(m.snapshots, key)
			removed++
		}
	}
	return removed, nil
}

func copySnapshot(s *Snapshot) *Snapshot {
	c := *s
	if s.Data != nil {
		c.Data = append([]byte(nil), s.Data...)
	}
	return &c
}
