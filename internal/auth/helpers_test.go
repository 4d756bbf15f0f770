package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
	_ "github.com/nerrad567/guard-imoto-core/migrations"
)

// testDB opens a migrated SQLite database in a temp directory.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}
