// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the server builds without CGo and
// cross-compiles like any other Go program.
//
// CONNECTION POOL AND PRAGMAS:
// sql.DB is a pool. A PRAGMA run with conn.Exec only configures whichever pooled
// connection happened to execute it, so per-connection settings (foreign keys,
// busy timeout) are passed in the DSN with _pragma=... and the driver applies
// them to every connection it opens.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sakif/pulsecheck/internal/repository/sqlite/migrations"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and applies pending migrations.
//
// dbPath examples:
//   - "data/pulsecheck.db"  → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("sqlite: registering functions: %w", err)
	}

	inMemory := dbPath == ":memory:"
	conn, err := sql.Open("sqlite", dsn(dbPath, inMemory))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a separate, empty database.
	if inMemory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	var fk int
	if err := conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: checking foreign keys: %w", err)
	}
	if fk != 1 {
		conn.Close()
		return nil, fmt.Errorf("sqlite: foreign keys are not enabled")
	}

	db := &DB{conn: conn}

	if err := applyMigrations(conn, migrations.FS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string, inMemory bool) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_time_format=sqlite",
	}
	if !inMemory {
		dbPath = filepath.Clean(dbPath)
		params = append(params, "_pragma=journal_mode(WAL)", "_pragma=synchronous(NORMAL)")
	}
	return dbPath + "?" + strings.Join(params, "&")
}

// Ping reports whether the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// inTx runs fn inside a transaction, committing on nil and rolling back otherwise.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
