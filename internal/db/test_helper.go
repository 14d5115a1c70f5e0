package db

import (
	"path/filepath"
	"testing"
)

// NewTest creates a migrated database in a test temp dir. The database is
// closed and removed automatically when the test finishes.
func NewTest(tb testing.TB) *DB {
	tb.Helper()

	dbPath := filepath.Join(tb.TempDir(), "test.db")
	database, err := New(dbPath)
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		tb.Fatalf("failed to migrate test database: %v", err)
	}
	return database
}
