package telemetry

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
	_ "github.com/nerrad567/guard-imoto-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "telemetry.db"),
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

// seedDevice registers a paired device with the given flags and returns it.
func seedDevice(t *testing.T, db *sql.DB, serial string, flags device.FeatureFlags) *device.Device {
	t.Helper()

	d := &device.Device{
		SerialNumber: serial,
		Enabled:      true,
		Paired:       true,
		Channel:      "device-" + serial,
		SecretHash:   "unused",
	}
	if err := device.NewSQLiteRepository(db).Create(context.Background(), d, flags); err != nil {
		t.Fatalf("seeding device: %v", err)
	}
	return d
}
