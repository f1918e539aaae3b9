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

// Store holds the itinerary copy of record, the entity catalog and the
// local snapshot blobs in one SQLite database.
type Store struct {
	db *sql.DB
}

// pragma is a connection setting Open applies and then reads back.
type pragma struct {
	name string
	set  string
	want string
}

// itineraryPragmas configure every store. journal_mode is handled
// separately because in-memory databases cannot use WAL.
var itineraryPragmas = []pragma{
	{name: "synchronous", set: "NORMAL", want: "1"},
	{name: "busy_timeout", set: "5000", want: "5000"},
	// Stops reference their itinerary row.
	{name: "foreign_keys", set: "ON", want: "1"},
}

// Open creates or opens the database at path and applies the schema.
// path may be ":memory:" for a throwaway store.
//
// Open is idempotent: reopening an existing file keeps its data.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite allows a single writer, and an in-memory
	// database exists only on the connection that created it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configure(journalModeFor(path)); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping reports whether the database is reachable. Used by the health route.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// journalModeFor returns the journal mode a database at path can hold.
func journalModeFor(path string) string {
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		return "memory"
	}
	return "wal"
}

// configure sets the journal mode and itinerary pragmas, and fails if
// SQLite did not accept one of them.
func (s *Store) configure(journalMode string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA journal_mode = " + journalMode).Scan(&got); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if !strings.EqualFold(got, journalMode) {
		return fmt.Errorf("journal_mode = %q, expected %q", got, journalMode)
	}

	for _, p := range itineraryPragmas {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.set)); err != nil {
			return fmt.Errorf("set %s: %w", p.name, err)
		}
		if err := s.verifyPragma(p.name, p.want); err != nil {
			return err
		}
	}
	return nil
}

// verifyPragma checks that a pragma reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if !strings.EqualFold(value, expected) {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
