package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DBFileName is the SQLite database file inside the data directory.
const DBFileName = "passvault.db"

// SQLite stores blobs in a single kv table.
type SQLite struct {
	dir string
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database under dir.
func OpenSQLite(dir string, log zerolog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %v", ErrStorage, err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStorage, err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateSchema(db); err != nil {
		db.Close()
		if errors.Is(err, ErrSchemaTooNew) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := os.Chmod(dbPath, FileMode); err != nil {
		log.Warn().Err(err).Msg("failed to set database permissions")
	}

	return &SQLite{dir: dir, db: db, log: log}, nil
}

// Get returns the value stored under key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %q: %v", ErrStorage, key, err)
	}
	return value, nil
}

// Put upserts key inside a transaction.
func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	return s.PutAll(ctx, Entry{Key: key, Value: value})
}

// PutAll upserts every entry inside one transaction.
func (s *SQLite) PutAll(ctx context.Context, entries ...Entry) error {
	if err := checkDiskSpaceForWrite(s.dir, entriesSize(entries), s.log); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, e.Key, e.Value)
		if err != nil {
			return fmt.Errorf("%w: failed to write %q: %v", ErrStorage, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", ErrStorage, err)
	}
	return nil
}

// Check runs SQLite's integrity check and returns the reported problems.
func (s *SQLite) Check(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("%w: integrity check failed: %v", ErrStorage, err)
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return problems, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
