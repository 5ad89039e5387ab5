package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SQLiteFileName is the database created when the sqlite backend is given
// a directory
const SQLiteFileName = "booth.db"

// OpenStorage opens the storage backend by name: "file" (path is a
// directory), "sqlite" (path is a database file or a directory to hold
// one) or "memory" (nothing is persisted, returns nil)
func OpenStorage(ctx context.Context, backend, path string) (Storage, error) {
	switch backend {
	case "", "memory":
		return nil, nil
	case "file":
		fs, err := NewFileStorage(path)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "sqlite":
		dbPath, err := sqlitePath(path)
		if err != nil {
			return nil, err
		}
		db, err := NewSQLiteStorage(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown session storage %q", backend)
	}
}

func sqlitePath(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return path, nil
	}
	if info, err := os.Stat(path); (err == nil && info.IsDir()) || filepath.Ext(path) == "" {
		path = filepath.Join(path, SQLiteFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}
	return path, nil
}
