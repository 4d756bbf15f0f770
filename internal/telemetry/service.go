package telemetry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nerrad567/guard-imoto-core/internal/device"
)

// Detector evaluates a freshly stored reading. *detection.Engine satisfies it.
type Detector interface {
	Evaluate(ctx context.Context, r *Reading) error
}

// Mirror receives a copy of every stored reading. *influxdb.Client satisfies it.
type Mirror interface {
	WriteReading(deviceID, kind string, fields map[string]any, recordedAt time.Time)
}

// ConfigSource loads a device's feature flags.
type ConfigSource interface {
	GetConfig(ctx context.Context, deviceID string) (*device.Config, error)
}

// Service is the ingestion path shared by HTTP and MQTT.
type Service struct {
	store    Store
	configs  ConfigSource
	detector Detector
	mirror   Mirror
	logger   Logger
	now      func() time.Time

	locks    *keyedMutex
	inflight sync.WaitGroup

	// mu guards closed and orders inflight.Add before Close's Wait.
	mu     sync.Mutex
	closed bool
}

// NewService creates a Service. detector and mirror may be nil.
func NewService(store Store, configs ConfigSource, detector Detector, mirror Mirror) *Service {
	return &Service{
		store:    store,
		configs:  configs,
		detector: detector,
		mirror:   mirror,
		logger:   noopLogger{},
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// Ingest validates and stores one reading for deviceID and schedules
// detection on it. It returns once the reading is durable; detection
// outcomes never reach the caller.
func (s *Service) Ingest(ctx context.Context, deviceID string, in Ingest) (*Reading, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}

	payload, at, err := in.Decode(s.now())
	if err != nil {
		return nil, err
	}

	cfg, err := s.configs.GetConfig(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := Allowed(payload.Kind(), cfg.FeatureFlags); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(deviceID)

	reading, err := s.store.Append(ctx, deviceID, payload, at)
	if err != nil {
		unlock()
		return nil, err
	}

	if s.mirror != nil {
		s.mirror.WriteReading(deviceID, string(reading.Kind()), reading.Fields(), reading.RecordedAt)
	}

	if s.detector == nil {
		unlock()
		return reading, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unlock()
		s.logger.Warn("detection skipped, service closed",
			"device_id", deviceID,
			"reading_id", reading.ID,
		)
		return reading, nil
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	// The device lock moves to the detection goroutine so the next reading
	// for this device waits until this one has been evaluated.
	go func() {
		defer s.inflight.Done()
		defer unlock()
		s.detect(context.WithoutCancel(ctx), reading)
	}()

	return reading, nil
}

func (s *Service) detect(ctx context.Context, r *Reading) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("detection panicked",
				"device_id", r.DeviceID,
				"kind", r.Kind(),
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := s.detector.Evaluate(ctx, r); err != nil {
		s.logger.Error("detection failed",
			"device_id", r.DeviceID,
			"kind", r.Kind(),
			"reading_id", r.ID,
			"error", err,
		)
	}
}

// Wait blocks until every scheduled detection has finished. Callers must
// not run Ingest concurrently; use Close during shutdown.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// Close stops accepting readings and waits for scheduled detection.
// Ingest returns ErrClosed afterwards. Close is safe to call more than once.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.inflight.Wait()
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Latest returns the newest reading of each kind for deviceID. Kinds with
// no readings are absent.
func (s *Service) Latest(ctx context.Context, deviceID string) (map[Kind]*Reading, error) {
	out := make(map[Kind]*Reading, len(Kinds))
	for _, k := range Kinds {
		r, err := s.store.Latest(ctx, deviceID, k)
		if IsNoReading(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[k] = r
	}
	return out, nil
}

// List returns the newest readings of kind for deviceID.
func (s *Service) List(ctx context.Context, deviceID string, kind Kind) ([]Reading, error) {
	return s.store.List(ctx, deviceID, kind, maxList)
}
