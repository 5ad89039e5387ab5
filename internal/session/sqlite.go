package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS booth_session (
	namespace  TEXT PRIMARY KEY,
	snapshot   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLiteStorage keeps snapshots in a SQLite database
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates the database at path and ensures the
// schema exists. Use ":memory:" for a throwaway database.
func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Load reads the snapshot of namespace
func (s *SQLiteStorage) Load(ctx context.Context, namespace string) (*Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot FROM booth_session WHERE namespace = ?
	`, namespace).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("parse stored session: %w", err)
	}
	return &snap, nil
}

// Save upserts the snapshot of namespace
func (s *SQLiteStorage) Save(ctx context.Context, namespace string, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO booth_session (namespace, snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(namespace) DO UPDATE
		SET snapshot = excluded.snapshot, updated_at = excluded.updated_at
	`, namespace, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the snapshot of namespace
func (s *SQLiteStorage) Delete(ctx context.Context, namespace string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM booth_session WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
