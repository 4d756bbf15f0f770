package detection

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/guard-imoto-core/internal/telemetry"
)

// History returns the reading just before the newest one of a kind.
// *telemetry.SQLiteStore satisfies it.
type History interface {
	SecondLatest(ctx context.Context, deviceID string, kind telemetry.Kind) (*telemetry.Reading, error)
}

// Sink receives findings after they are persisted. PublishFinding must not
// block for long; it runs on the detection path.
type Sink interface {
	PublishFinding(f Finding)
}

// FindingWriter mirrors findings into a time-series store.
// *influxdb.Client satisfies it.
type FindingWriter interface {
	WriteFinding(deviceID, findingType string, severity int, createdAt time.Time)
}

// MirrorSink adapts a FindingWriter to Sink.
type MirrorSink struct {
	Writer FindingWriter
}

// PublishFinding implements Sink.
func (m MirrorSink) PublishFinding(f Finding) {
	m.Writer.WriteFinding(f.DeviceID, f.Type, f.Severity, f.CreatedAt)
}

// Engine evaluates readings against a Registry.
type Engine struct {
	registry Registry
	history  History
	loader   *ContextLoader
	repo     Repository
	sinks    []Sink
	logger   Logger
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(registry Registry, history History, loader *ContextLoader, repo Repository) *Engine {
	if loader == nil {
		loader = NewContextLoader(nil, nil)
	}
	return &Engine{
		registry: registry,
		history:  history,
		loader:   loader,
		repo:     repo,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// AddSink registers a sink. Not safe to call once evaluation has started.
func (e *Engine) AddSink(s Sink) {
	e.sinks = append(e.sinks, s)
}

// Evaluate implements telemetry.Detector.
func (e *Engine) Evaluate(ctx context.Context, r *telemetry.Reading) error {
	_, err := e.Run(ctx, r)
	return err
}

// Run evaluates r, which must already be stored, and returns the
// persisted findings. A rule that panics is logged and skipped; the other
// rules still run.
func (e *Engine) Run(ctx context.Context, r *telemetry.Reading) ([]Finding, error) {
	kind := r.Kind()
	rules := e.registry[kind]
	if len(rules) == 0 {
		return nil, nil
	}

	previous, err := e.history.SecondLatest(ctx, r.DeviceID, kind)
	if err != nil && !telemetry.IsNoReading(err) {
		return nil, fmt.Errorf("loading previous %s reading: %w", kind, err)
	}

	dctx, err := e.loader.Load(ctx, r.DeviceID, kind, previous)
	if err != nil {
		return nil, err
	}

	in := Input{DeviceID: r.DeviceID, Reading: r, Previous: previous, Context: dctx}

	var findings []Finding
	for _, rule := range rules {
		out, err := e.apply(rule, in)
		if err != nil {
			e.logger.Error("detection rule failed",
				"rule", rule.Name(),
				"device_id", r.DeviceID,
				"error", err,
			)
			continue
		}
		findings = append(findings, out...)
	}
	if len(findings) == 0 {
		return nil, nil
	}

	createdAt := e.now().UTC()
	for i := range findings {
		findings[i].ID = "det-" + uuid.NewString()
		findings[i].DeviceID = r.DeviceID
		findings[i].CreatedAt = createdAt
	}

	if err := e.repo.CreateBatch(ctx, findings); err != nil {
		return nil, fmt.Errorf("persisting findings: %w", err)
	}

	e.logger.Info("findings recorded",
		"device_id", r.DeviceID,
		"kind", kind,
		"count", len(findings),
	)
	for _, f := range findings {
		for _, s := range e.sinks {
			s.PublishFinding(f)
		}
	}
	return findings, nil
}

func (e *Engine) apply(rule Rule, in Input) (out []Finding, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v\n%s", ErrRulePanicked, rule.Name(), rec, debug.Stack())
		}
	}()
	return rule.Evaluate(in), nil
}
