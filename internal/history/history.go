// Package history persists delivered sessions in a local SQLite database
// so users can review or re-copy past dictations.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one delivered session.
type Entry struct {
	ID         string
	Mode       string
	Provider   string
	Model      string
	Transcript string
	Result     string
	Method     string
	Duration   time.Duration
	CreatedAt  time.Time
}

// Store is a SQLite-backed session log.
type Store struct {
	db *sql.DB
}

// Open creates the database file (and parent directories) if needed and
// ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps concurrent reads cheap while a session is being recorded.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		transcript TEXT NOT NULL,
		result TEXT NOT NULL,
		method TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record inserts one entry. A zero CreatedAt is stamped with the current
// time.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	query := `
	INSERT INTO sessions (id, mode, provider, model, transcript, result, method, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Mode, e.Provider, e.Model,
		e.Transcript, e.Result, e.Method,
		e.Duration.Milliseconds(), e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
	SELECT id, mode, provider, model, transcript, result, method, duration_ms, created_at
	FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMS, createdAt int64
		if err := rows.Scan(
			&e.ID, &e.Mode, &e.Provider, &e.Model,
			&e.Transcript, &e.Result, &e.Method,
			&durationMS, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return entries, nil
}

// Trim deletes everything but the newest keep entries and reports how many
// rows were removed.
func (s *Store) Trim(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
	DELETE FROM sessions WHERE id NOT IN (
		SELECT id FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?
	)`

	res, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("trim sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
