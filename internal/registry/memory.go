package registry

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and the single-process
// network simulation.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]PeerEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]PeerEntry)}
}

func (m *MemoryStore) Upsert(_ context.Context, entry PeerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Status = StatusActive
	if entry.LastSeen.IsZero() {
		entry.LastSeen = time.Now()
	}
	m.entries[entry.NodeID] = entry
	return nil
}

func (m *MemoryStore) Active(_ context.Context, excludeID string) ([]PeerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PeerEntry
	for id, entry := range m.entries {
		if id == excludeID || entry.Status != StatusActive {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *MemoryStore) MarkStale(_ context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for id, entry := range m.entries {
		if entry.Status == StatusActive && entry.LastSeen.Before(cutoff) {
			entry.Status = StatusStale
			m.entries[id] = entry
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }
