package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// migrations[i] takes a database from version i to i+1.
var migrations = []string{
	schemaSQL, // 1: watermarks and cycle history
}

var schemaVersion = len(migrations)

// requiredTables must exist once a database is at schemaVersion.
var requiredTables = []string{"metadata", "watermarks", "cycles", "cycle_sources"}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)"); err != nil {
		return fmt.Errorf("create metadata: %w", err)
	}

	version, err := currentVersion(ctx, tx)
	if err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	for v := version; v < schemaVersion; v++ {
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			return fmt.Errorf("migrate to version %d: %w", v+1, err)
		}
	}
	if version < schemaVersion {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO metadata(key, value) VALUES('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			strconv.Itoa(schemaVersion)); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
	}

	if err := checkTables(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// currentVersion returns 0 for a database that has never been migrated.
func currentVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var raw string
	err := tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("parse schema version %q", raw)
	}
	return v, nil
}

func checkTables(ctx context.Context, tx *sql.Tx) error {
	for _, name := range requiredTables {
		var n int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n); err != nil {
			return fmt.Errorf("check table %s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("database is at schema version %d but table %s is missing", schemaVersion, name)
		}
	}
	return nil
}
