package testutil

import (
	"testing"

	"fieldsync/internal/database"
	"fieldsync/internal/fieldsync"
)

// NewTestDatabase creates a new in-memory SQLite database with migrations applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) fieldsync.Database {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
