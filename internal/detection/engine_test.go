package detection

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/device"
	"github.com/nerrad567/guard-imoto-core/internal/geofence"
	"github.com/nerrad567/guard-imoto-core/internal/infrastructure/database"
	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
	_ "github.com/nerrad567/guard-imoto-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "detection.db"),
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

type staticTags []string

func (s staticTags) AllowedTags(context.Context, string) ([]string, error) {
	return s, nil
}

type recordingSink struct {
	got []Finding
}

func (s *recordingSink) PublishFinding(f Finding) {
	s.got = append(s.got, f)
}

type fixture struct {
	deviceID string
	store    *telemetry.SQLiteStore
	repo     *SQLiteRepository
	fences   *geofence.SQLiteRepository
	engine   *Engine
	sink     *recordingSink
	clock    time.Time
}

func newFixture(t *testing.T, registry Registry, tags TagSource) *fixture {
	t.Helper()

	db := setupTestDB(t)
	d := &device.Device{
		SerialNumber: "GI-0001",
		Enabled:      true,
		Paired:       true,
		Channel:      "device-GI-0001",
		SecretHash:   "unused",
	}
	if err := device.NewSQLiteRepository(db).Create(context.Background(), d, device.DefaultFeatureFlags()); err != nil {
		t.Fatalf("seeding device: %v", err)
	}

	f := &fixture{
		deviceID: d.ID,
		store:    telemetry.NewSQLiteStore(db),
		repo:     NewSQLiteRepository(db),
		fences:   geofence.NewSQLiteRepository(db),
		sink:     &recordingSink{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(registry, f.store, NewContextLoader(tags, f.fences), f.repo)
	f.engine.AddSink(f.sink)
	return f
}

// push appends a reading one second after the previous one and evaluates it.
func (f *fixture) push(t *testing.T, p telemetry.Payload) []Finding {
	t.Helper()

	f.clock = f.clock.Add(time.Second)
	r, err := f.store.Append(context.Background(), f.deviceID, p, f.clock)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	findings, err := f.engine.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return findings
}

func TestEngine_BatterySequence(t *testing.T) {
	tests := []struct {
		name         string
		levels       []int
		wantSeverity int
	}{
		{"sudden drop", []int{90, 70}, 2},
		{"severe drop", []int{90, 55}, 4},
		{"small drop", []int{90, 80}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultRegistry(), nil)

			var last []Finding
			for _, level := range tt.levels {
				last = f.push(t, telemetry.Battery{Level: level})
			}

			if tt.wantSeverity == 0 {
				if len(last) != 0 {
					t.Fatalf("findings = %+v, want none", last)
				}
				return
			}
			if len(last) != 1 || last[0].Severity != tt.wantSeverity {
				t.Fatalf("findings = %+v, want one with severity %d", last, tt.wantSeverity)
			}

			stored, err := f.repo.ListByDevice(context.Background(), f.deviceID, 0)
			if err != nil {
				t.Fatalf("ListByDevice() error = %v", err)
			}
			if len(stored) != 1 {
				t.Fatalf("stored findings = %d, want 1", len(stored))
			}
			got := stored[0]
			if got.ID != last[0].ID || got.DeviceID != f.deviceID || got.Type != TypeBatterySuddenDrop {
				t.Errorf("stored = %+v", got)
			}
			delta := float64(tt.levels[0] - tt.levels[1])
			if got.Metadata["previous"] != float64(tt.levels[0]) || got.Metadata["delta"] != delta {
				t.Errorf("stored metadata = %v", got.Metadata)
			}
		})
	}
}

func TestEngine_FirstReadingHasNoPrevious(t *testing.T) {
	f := newFixture(t, DefaultRegistry(), nil)

	if got := f.push(t, telemetry.Battery{Level: 5}); len(got) != 0 {
		t.Errorf("first battery reading produced %+v", got)
	}
	if got := f.push(t, telemetry.GPS{Lat: 51.5, Lng: -0.1}); len(got) != 0 {
		t.Errorf("first gps reading produced %+v", got)
	}
}

func TestEngine_GPSMovementAndGeofence(t *testing.T) {
	f := newFixture(t, DefaultRegistry(), nil)
	ctx := context.Background()

	if err := f.fences.Create(ctx, &geofence.Geofence{DeviceID: f.deviceID, Name: "yard", Lat: 0, Lng: 0, Radius: 0.0005}); err != nil {
		t.Fatalf("creating fence: %v", err)
	}

	f.push(t, telemetry.GPS{Lat: 0, Lng: 0})
	got := f.push(t, telemetry.GPS{Lat: 0, Lng: 0.001})

	if len(got) != 2 {
		t.Fatalf("findings = %+v, want movement then breach", got)
	}
	if got[0].Type != TypeGPSMovement || got[1].Type != TypeGeofenceBreach {
		t.Errorf("finding order = %s, %s", got[0].Type, got[1].Type)
	}

	stored, _ := f.repo.ListByDevice(ctx, f.deviceID, 10)
	if len(stored) != 2 {
		t.Fatalf("stored = %d, want 2", len(stored))
	}
	// Newest first; rows from one evaluation share created_at and come back
	// in reverse insertion order.
	if stored[0].Type != TypeGeofenceBreach || stored[1].Type != TypeGPSMovement {
		t.Errorf("stored order = %s, %s", stored[0].Type, stored[1].Type)
	}
}

func TestEngine_RFIDEscalation(t *testing.T) {
	f := newFixture(t, DefaultRegistry(), staticTags{"04A1"})

	if got := f.push(t, telemetry.RFID{TagUID: "04A1"}); len(got) != 0 {
		t.Errorf("allowed tag produced %+v", got)
	}
	got := f.push(t, telemetry.RFID{TagUID: "FFFF"})
	if len(got) != 1 || got[0].Severity != 3 {
		t.Fatalf("first unknown scan = %+v, want severity 3", got)
	}
	got = f.push(t, telemetry.RFID{TagUID: "FFFF"})
	if len(got) != 1 || got[0].Severity != 4 {
		t.Fatalf("repeated unknown scan = %+v, want severity 4", got)
	}
}

func TestEngine_GyroUsesPreviousSample(t *testing.T) {
	f := newFixture(t, DefaultRegistry(), nil)

	if got := f.push(t, telemetry.Gyro{X: 0.1}); len(got) != 0 {
		t.Errorf("first gyro produced %+v", got)
	}
	got := f.push(t, telemetry.Gyro{X: 8})
	if len(got) != 1 || got[0].Type != TypeGyroSuddenMove {
		t.Fatalf("findings = %+v, want one sudden movement", got)
	}
}

func TestEngine_SinksReceivePersistedFindings(t *testing.T) {
	f := newFixture(t, DefaultRegistry(), nil)

	f.push(t, telemetry.Battery{Level: 90})
	got := f.push(t, telemetry.Battery{Level: 40})

	if len(f.sink.got) != 1 || f.sink.got[0].ID != got[0].ID {
		t.Fatalf("sink got %+v, want %+v", f.sink.got, got)
	}
	if f.sink.got[0].CreatedAt.IsZero() {
		t.Error("sink finding has no created_at")
	}
}

type panicRule struct{}

func (panicRule) Name() string { return "panics" }

func (panicRule) Evaluate(Input) []Finding { panic("boom") }

type staticRule struct {
	severity int
}

func (staticRule) Name() string { return "static" }

func (r staticRule) Evaluate(Input) []Finding {
	return []Finding{{Type: "static", Severity: r.severity}}
}

func TestEngine_RulePanicIsIsolated(t *testing.T) {
	reg := Registry{telemetry.KindBattery: {panicRule{}, staticRule{severity: 1}}}
	f := newFixture(t, reg, nil)

	got := f.push(t, telemetry.Battery{Level: 50})
	if len(got) != 1 || got[0].Type != "static" {
		t.Fatalf("findings = %+v, want the static finding only", got)
	}
}

func TestEngine_InvalidFindingRollsBack(t *testing.T) {
	reg := Registry{telemetry.KindBattery: {staticRule{severity: 1}, staticRule{severity: 9}}}
	f := newFixture(t, reg, nil)
	ctx := context.Background()

	r, err := f.store.Append(ctx, f.deviceID, telemetry.Battery{Level: 50}, f.clock)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := f.engine.Run(ctx, r); !errors.Is(err, ErrInvalidFinding) {
		t.Fatalf("Run() error = %v, want ErrInvalidFinding", err)
	}

	stored, _ := f.repo.ListByDevice(ctx, f.deviceID, 0)
	if len(stored) != 0 {
		t.Errorf("stored = %+v, want nothing after rollback", stored)
	}
	if len(f.sink.got) != 0 {
		t.Errorf("sink received %+v after failed persist", f.sink.got)
	}
}

func TestEngine_UnregisteredKindIsNoop(t *testing.T) {
	f := newFixture(t, Registry{}, nil)

	if got := f.push(t, telemetry.Gyro{X: 9000}); got != nil {
		t.Errorf("findings = %+v, want nil", got)
	}
}

func TestEngine_SatisfiesDetector(t *testing.T) {
	var _ telemetry.Detector = (*Engine)(nil)
}
