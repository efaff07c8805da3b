package state

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Nothing survives a restart; used for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	known    map[string]time.Time
	pending  *PendingTakeoff
	owner    string
	lockedAt time.Time

	// Err, when set, is returned by every MessageLog call
	Err error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{known: make(map[string]time.Time)}
}

func (m *Memory) IsKnown(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	_, ok := m.known[id]
	return ok, nil
}

func (m *Memory) MarkKnown(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.known[id]; !ok {
		m.known[id] = at
	}
	return nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var n int64
	for id, at := range m.known {
		if at.Before(before) {
			delete(m.known, id)
			n++
		}
	}
	return n, nil
}

// KnownCount returns the number of known message ids
func (m *Memory) KnownCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.known)
}

func (m *Memory) Pending(_ context.Context) (*PendingTakeoff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil, nil
	}
	p := *m.pending
	return &p, nil
}

func (m *Memory) SetPending(_ context.Context, p PendingTakeoff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = &p
	return nil
}

func (m *Memory) ClearPending(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return nil
}

func (m *Memory) Acquire(_ context.Context, owner string, staleAfter time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner != "" && m.owner != owner && time.Since(m.lockedAt) < staleAfter {
		return ErrLocked
	}
	m.owner = owner
	m.lockedAt = time.Now()
	return nil
}

func (m *Memory) Release(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owner == owner {
		m.owner = ""
	}
	return nil
}
