// Package storage provides in-memory history storage.

package storage

import (
	"context"
	"sort"
	"sync"
)

// InMemoryHistory implements HistoryStorage in memory.
// Used when no database path is configured, and in tests.
type InMemoryHistory struct {
	mu      sync.RWMutex
	entries []HistoryEntry
}

// NewInMemoryHistory creates a new in-memory history.
func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{}
}

// Record stores an entry.
func (s *InMemoryHistory) Record(_ context.Context, entry HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, prepare(entry))
	return nil
}

// List returns up to limit entries, newest first.
func (s *InMemoryHistory) List(_ context.Context, limit int) ([]HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryEntry, len(s.entries))
	copy(out, s.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Get returns the entry with id.
func (s *InMemoryHistory) Get(_ context.Context, id string) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.ID == id {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

// Close is a no-op.
func (s *InMemoryHistory) Close() error {
	return nil
}
