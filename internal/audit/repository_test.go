package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
	_ "github.com/nerrad567/guard-imoto-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
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

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	entry := &AuditLog{
		ActorType:  ActorUser,
		ActorID:    "usr-1",
		Action:     "device.pair",
		TargetType: "device",
		TargetID:   "dev-1",
		Metadata:   map[string]any{"serial_number": "GI-1"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Fatalf("Create() should fill ID and CreatedAt, got %+v", entry)
	}

	got, err := repo.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Action != "device.pair" || got.ActorID != "usr-1" || got.TargetID != "dev-1" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.Metadata["serial_number"] != "GI-1" {
		t.Errorf("Metadata = %v", got.Metadata)
	}

	if _, err := repo.GetByID(ctx, "aud-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, actor := range []string{"usr-a", "usr-b", "usr-a", "usr-a"} {
		if err := repo.Create(ctx, &AuditLog{
			ActorType:  ActorUser,
			ActorID:    actor,
			Action:     "device.config_update",
			TargetType: "device",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"all", Filter{}, 4, 4},
		{"by actor", Filter{ActorID: "usr-a"}, 3, 3},
		{"paged", Filter{ActorID: "usr-a", Limit: 2}, 3, 2},
		{"offset past end", Filter{ActorID: "usr-a", Offset: 10}, 3, 0},
		{"by action", Filter{Action: "device.pair"}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Logs) != tt.wantLen {
				t.Errorf("len(Logs) = %d, want %d", len(res.Logs), tt.wantLen)
			}
		})
	}

	res, _ := repo.List(ctx, Filter{ActorID: "usr-a"})
	if !res.Logs[0].CreatedAt.After(res.Logs[1].CreatedAt) {
		t.Error("List() should return newest first")
	}
}

type memRepo struct {
	mu      sync.Mutex
	entries []*AuditLog
	fail    bool
}

func (m *memRepo) Create(_ context.Context, log *AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.entries = append(m.entries, log)
	return nil
}

func (m *memRepo) GetByID(context.Context, string) (*AuditLog, error) { return nil, ErrNotFound }

func (m *memRepo) List(context.Context, Filter) (*ListResult, error) { return &ListResult{}, nil }

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestAsyncRecorder_DrainsOnShutdown(t *testing.T) {
	repo := &memRepo{}
	rec := NewAsyncRecorder(repo, nopLogger{})

	for range 10 {
		rec.Record(&AuditLog{ActorType: ActorSystem, Action: "test", TargetType: "device"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)
	cancel()

	select {
	case <-rec.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not stop")
	}
	if got := repo.count(); got != 10 {
		t.Errorf("written = %d, want 10", got)
	}
}

func TestAsyncRecorder_WriteFailureDoesNotStop(t *testing.T) {
	repo := &memRepo{fail: true}
	rec := NewAsyncRecorder(repo, nopLogger{})
	rec.Record(&AuditLog{ActorType: ActorSystem, Action: "test", TargetType: "device"})

	ctx, cancel := context.WithCancel(context.Background())
	go rec.Run(ctx)
	cancel()
	<-rec.Done()
}
