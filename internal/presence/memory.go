package presence

import (
	"context"
	"sync"
)

// Memory is a single-process registry. Connections cannot outlive the process,
// so leases never expire.
type Memory struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

// NewMemory creates an empty in-process registry.
func NewMemory() *Memory {
	return &Memory{conns: make(map[string]map[string]struct{})}
}

func (m *Memory) Connect(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		m.conns[userID] = set
	}
	first := len(set) == 0
	set[connID] = struct{}{}
	return first, nil
}

func (m *Memory) Disconnect(_ context.Context, userID, connID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.conns[userID]
	if !ok {
		return false, nil
	}
	if _, ok := set[connID]; !ok {
		return false, nil
	}
	delete(set, connID)
	if len(set) > 0 {
		return false, nil
	}
	delete(m.conns, userID)
	return true, nil
}

func (m *Memory) Refresh(context.Context, string, string) (bool, error) { return false, nil }

func (m *Memory) Reap(context.Context) ([]string, error) { return nil, nil }

func (m *Memory) Online(_ context.Context, userIDs ...string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	online := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		online[id] = len(m.conns[id]) > 0
	}
	return online, nil
}

var _ Registry = (*Memory)(nil)
