package history

import (
	"context"
	"sync"
)

const defaultPerSession = 100

// MemoryStore keeps the most recent entries of each session in process.
type MemoryStore struct {
	mu         sync.RWMutex
	perSession int
	entries    map[string][]Entry
}

// NewMemoryStore keeps at most perSession entries per session.
func NewMemoryStore(perSession int) *MemoryStore {
	if perSession <= 0 {
		perSession = defaultPerSession
	}
	return &MemoryStore{perSession: perSession, entries: make(map[string][]Entry)}
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.entries[e.SessionID], e)
	if len(list) > m.perSession {
		list = append([]Entry(nil), list[len(list)-m.perSession:]...)
	}
	m.entries[e.SessionID] = list
	return nil
}

func (m *MemoryStore) List(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := tail(m.entries[sessionID], limit)
	out := make([]Entry, len(list))
	copy(out, list)
	return out, nil
}

// Forget drops every entry of sessionID.
func (m *MemoryStore) Forget(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, sessionID)
	return nil
}

func (m *MemoryStore) Close(context.Context) error { return nil }

var (
	_ Store     = (*MemoryStore)(nil)
	_ Forgetter = (*MemoryStore)(nil)
)
