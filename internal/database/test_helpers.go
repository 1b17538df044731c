package database

import (
	"path/filepath"
	"testing"
)

// setupTestDB opens a throwaway SQLite database in a temp directory and runs
// migrations. The file is cleaned up with the test's temp dir.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gateway_test.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}
