package database

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestDB returns a SQLite file path in a per-test temp directory
func setupTestDB(t *testing.T, testName string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), testName+".db")
}

// setupPostgresDB returns the connection string in TEST_POSTGRES_DSN.
// Tests skip when it is unset.
func setupPostgresDB(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping PostgreSQL test")
	}
	return dsn
}
