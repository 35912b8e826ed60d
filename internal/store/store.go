package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = errors.New("store: not found")

// Store wraps a SQL database with the queries and commands used by the
// batch engines.
type Store struct {
	db *sql.DB
	d  dialect
}

// Open connects to the database identified by driver ("postgres" or
// "sqlite3") and dsn, and verifies the connection.
func Open(driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite supports one writer at a time; a second connection would
		// only produce SQLITE_BUSY under the engines' write transactions.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	return &Store{db: db, d: d}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema applies the embedded schema DDL for the store's dialect.
// All statements are IF NOT EXISTS, so this is safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := schemaPostgres
	if s.d.name() == "sqlite3" {
		ddl = schemaSQLite
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// q rewrites ?-style placeholders for the active driver.
func (s *Store) q(query string) string {
	return s.d.rebind(query)
}
