package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

		db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close() //nolint:errcheck // Test cleanup

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %v, want %v", db.Path(), dbPath)
		}
	})
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	db := openTestDB(t)

	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() after Close() expected error, got nil")
	}
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE items (name TEXT NOT NULL) STRICT"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	count := func() int {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		return n
	}

	err := WithTx(ctx, db.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('kept')")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx() commit path error = %v", err)
	}
	if got := count(); got != 1 {
		t.Fatalf("rows after commit = %d, want 1", got)
	}

	errBoom := errors.New("boom")
	err = WithTx(ctx, db.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO items (name) VALUES ('discarded')"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("WithTx() error = %v, want %v", err, errBoom)
	}
	if got := count(); got != 1 {
		t.Errorf("rows after rollback = %d, want 1", got)
	}
}

func TestTimeRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 1, 12, 30, 45, 123456000, time.FixedZone("CET", 3600))

	out, err := ParseTime(FormatTime(in))
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}

	// SQLite default timestamps use second precision RFC3339.
	legacy, err := ParseTime("2026-03-01T11:30:45Z")
	if err != nil {
		t.Fatalf("ParseTime(RFC3339) error = %v", err)
	}
	if legacy.Second() != 45 {
		t.Errorf("legacy seconds = %d, want 45", legacy.Second())
	}
}

func TestFormatTime_SortsLexically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := FormatTime(base.Add(900 * time.Millisecond))
	later := FormatTime(base.Add(time.Second))

	if earlier >= later {
		t.Errorf("%q should sort before %q", earlier, later)
	}
}

func TestParseNullTime(t *testing.T) {
	got, err := ParseNullTime(sql.NullString{})
	if err != nil || got != nil {
		t.Errorf("ParseNullTime(NULL) = %v, %v; want nil, nil", got, err)
	}
	if NullTime(nil) != nil {
		t.Error("NullTime(nil) should bind NULL")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE uniq (v TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO uniq (v) VALUES ('a')"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.ExecContext(ctx, "INSERT INTO uniq (v) VALUES ('a')")
	if !IsUniqueViolation(err) {
		t.Errorf("IsUniqueViolation(%v) = false, want true", err)
	}
	if IsUniqueViolation(errors.New("other")) {
		t.Error("IsUniqueViolation(non-sqlite error) = true")
	}
	if IsUniqueViolation(nil) {
		t.Error("IsUniqueViolation(nil) = true")
	}
}
