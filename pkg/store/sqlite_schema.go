package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Schema versions
const (
	// SchemaVersion1 is the single kv table.
	SchemaVersion1 = 1
	// CurrentSchemaVersion is the current schema version
	CurrentSchemaVersion = SchemaVersion1
)

// ErrSchemaTooNew is returned for databases written by a newer release.
var ErrSchemaTooNew = errors.New("store: database schema is newer than this release supports")

// getSchemaVersion returns the stored schema version, or 0 for an empty
// database.
func getSchemaVersion(db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// setSchemaVersion records version inside tx.
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			migrated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// migrateSchema brings db up to CurrentSchemaVersion.
func migrateSchema(db *sql.DB) error {
	version, err := getSchemaVersion(db)
	if err != nil {
		return err
	}
	if version > CurrentSchemaVersion {
		return fmt.Errorf("%w: found v%d, support up to v%d", ErrSchemaTooNew, version, CurrentSchemaVersion)
	}

	if version < SchemaVersion1 {
		if err := migrateToV1(db); err != nil {
			return fmt.Errorf("migration to v1 failed: %w", err)
		}
	}
	return nil
}

// migrateToV1 creates the kv table.
func migrateToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	if err := setSchemaVersion(tx, SchemaVersion1); err != nil {
		return err
	}
	return tx.Commit()
}
