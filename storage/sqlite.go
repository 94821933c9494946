// Package storage provides SQLite history storage.
//
// Information Hiding:
// - SQLite connection management hidden behind interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SqliteHistory implements HistoryStorage using SQLite.
type SqliteHistory struct {
	db *sql.DB
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteHistory, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return newSqliteHistory(db)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory() (*SqliteHistory, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	return newSqliteHistory(db)
}

func newSqliteHistory(db *sql.DB) (*SqliteHistory, error) {
	s := &SqliteHistory{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SqliteHistory) Close() error {
	return s.db.Close()
}

func (s *SqliteHistory) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			repository TEXT NOT NULL,
			query TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			success INTEGER NOT NULL,
			answer TEXT NOT NULL,
			tool_calls INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_queries_created
		ON queries(created_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores an entry.
func (s *SqliteHistory) Record(ctx context.Context, entry HistoryEntry) error {
	entry = prepare(entry)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (id, created_at, repository, query, provider, model, success, answer, tool_calls, total_tokens, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreatedAt.UnixMilli(),
		entry.Repository,
		entry.Query,
		entry.Provider,
		entry.Model,
		entry.Success,
		entry.Answer,
		entry.ToolCalls,
		entry.TotalTokens,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, created_at, repository, query, provider, model, success, answer, tool_calls, total_tokens, duration_ms FROM queries`

// List returns up to limit entries, newest first.
func (s *SqliteHistory) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queries: %w", err)
	}
	return entries, nil
}

// Get returns the entry with id, or nil if there is none.
func (s *SqliteHistory) Get(ctx context.Context, id string) (*HistoryEntry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (HistoryEntry, error) {
	var entry HistoryEntry
	var createdAt int64
	err := row.Scan(
		&entry.ID,
		&createdAt,
		&entry.Repository,
		&entry.Query,
		&entry.Provider,
		&entry.Model,
		&entry.Success,
		&entry.Answer,
		&entry.ToolCalls,
		&entry.TotalTokens,
		&entry.DurationMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, err
	}
	if err != nil {
		return entry, fmt.Errorf("failed to scan query: %w", err)
	}
	entry.CreatedAt = time.UnixMilli(createdAt).UTC()
	return entry, nil
}
