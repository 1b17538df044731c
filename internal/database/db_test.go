package database

import (
	"path/filepath"
	"testing"
)

func TestNewAndMigrate(t *testing.T) {
	db := setupTestDB(t)

	// Migrations must be idempotent.
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}

	var version int
	err := db.Conn().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		t.Fatalf("failed to read schema version: %v", err)
	}
	if version < 3 {
		t.Errorf("expected schema version >= 3, got %d", version)
	}
}

func TestNewCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	db, err := New(path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Conn().Ping(); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}
