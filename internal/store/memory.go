package store

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in process memory. Used when persistence is
// disabled and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]HistoryEntry
}

// NewMemory creates an empty in-memory snapshotter.
func NewMemory() *MemoryStore {
	return &MemoryStore{rooms: make(map[string][]HistoryEntry)}
}

// SaveHistory stores a copy of entries.
func (s *MemoryStore) SaveHistory(_ context.Context, roomID string, entries []HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = append([]HistoryEntry(nil), entries...)
	return nil
}

// LoadHistory returns a copy of the stored entries.
func (s *MemoryStore) LoadHistory(_ context.Context, roomID string) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]HistoryEntry(nil), entries...), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
