package db

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Database interface for dependency injection and testing
type Database interface {
	Conn() *sql.DB
	Close() error
	Migrate() error
}

// SQLiteWriteMutex serializes SQLite write operations.
//
// SQLite only allows 1 writer at a time, even with WAL mode enabled.
// All code that performs write operations (INSERT, UPDATE, DELETE) to the
// SQLite database MUST acquire this lock to prevent SQLITE_BUSY errors.
var SQLiteWriteMutex sync.Mutex

type DB struct {
	conn *sql.DB
}

// Ensure DB implements Database interface
var _ Database = (*DB)(nil)

// New opens (or creates) the SQLite database at databaseURL with WAL mode,
// foreign keys, and a busy timeout enabled.
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

func dsn(databaseURL string) string {
	if strings.Contains(databaseURL, "?") {
		return databaseURL
	}
	return databaseURL + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Migrate runs embedded migrations
func (db *DB) Migrate() error {
	return RunMigrations(db.conn)
}
