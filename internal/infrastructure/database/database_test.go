package database

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesFileAndDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "nested", "test.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestHealthCheck(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(Config{Path: filepath.Join(tmpDir, "test.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	db, err := Open(Config{Path: filepath.Join(tmpDir, "test.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	// Second close on the underlying pool returns nil in database/sql.
	if err := db.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
