// Package storage records the queries ghscout has answered.
//
// Information Hiding:
// - Storage backend hidden behind HistoryStorage
// - Identifier and timestamp assignment hidden
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one answered (or failed) query. Credentials are never stored.
type HistoryEntry struct {
	ID          string
	CreatedAt   time.Time
	Repository  string
	Query       string
	Provider    string
	Model       string
	Success     bool
	Answer      string // final text, or the error message on failure
	ToolCalls   int
	TotalTokens uint32
	DurationMs  uint64
}

// NewHistoryEntry creates an entry with a fresh id and the current time.
func NewHistoryEntry(repository, query string) HistoryEntry {
	return HistoryEntry{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		Repository: repository,
		Query:      query,
	}
}

// Status returns "ok" or "error".
func (e HistoryEntry) Status() string {
	if e.Success {
		return "ok"
	}
	return "error"
}

// HistoryStorage persists query history.
type HistoryStorage interface {
	// Record stores an entry. Entries without an id get one assigned.
	Record(ctx context.Context, entry HistoryEntry) error

	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]HistoryEntry, error)

	// Get returns the entry with id, or nil if there is none.
	Get(ctx context.Context, id string) (*HistoryEntry, error)

	Close() error
}

func prepare(entry HistoryEntry) HistoryEntry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry
}
