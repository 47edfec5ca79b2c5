package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a database to version. Version 0 is the bare schema.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations are applied in order, each in its own transaction together with
// the user_version bump.
var migrations = []migration{
	{
		version: 1,
		name:    "trace filter by kind and element",
		stmt: `CREATE INDEX IF NOT EXISTS idx_events_run_kind_element
			ON events(run_id, kind, element)`,
	},
	{
		version: 2,
		name:    "trace filter by element",
		stmt: `CREATE INDEX IF NOT EXISTS idx_events_run_element
			ON events(run_id, element, seq)`,
	},
}

// currentSchemaVersion is the version of the last migration.
var currentSchemaVersion = migrations[len(migrations)-1].version

// traceColumns are the columns the read and write paths rely on.
var traceColumns = map[string][]string{
	"runs":   {"id", "scenario", "tree_hash", "source", "finished", "done", "result", "finished_at", "error"},
	"events": {"run_id", "seq", "at", "kind", "handle", "parent", "element", "type", "result"},
}

// Store provides durable storage for timeline runs and their traces.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Open creates or opens a run log at the given path. It checks that the runs
// and events tables carry every column the store reads and writes, then
// migrates the file to the current schema version.
//
// Open is idempotent: reopening an existing database leaves its runs intact.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := checkColumns(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SchemaVersion returns the migration version recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("%q: %w", pragma, err)
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

// migrate applies every migration newer than the database's user_version.
// A database from a newer build is rejected rather than written to.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("run log schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
	}
	return tx.Commit()
}

// checkColumns reports tables that lack a column the store depends on, which
// happens when the file was created by an unrelated program.
func checkColumns(db *sql.DB) error {
	for _, table := range []string{"runs", "events"} {
		rows, err := db.Query("SELECT name FROM pragma_table_info(?)", table)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}

		have := make(map[string]bool)
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("inspect %s: %w", table, err)
			}
			have[name] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("inspect %s: %w", table, err)
		}

		var missing []string
		for _, col := range traceColumns[table] {
			if !have[col] {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("table %s is missing columns: %s", table, strings.Join(missing, ", "))
		}
	}
	return nil
}
