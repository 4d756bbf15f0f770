package audit

import (
	"context"
	"sync"
)

// Recorder accepts audit entries without ever failing the caller.
type Recorder interface {
	Record(entry *AuditLog)
}

// Logger is the logging surface the async recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// recorderBuffer bounds queued entries. Entries beyond it are dropped.
const recorderBuffer = 256

// AsyncRecorder queues entries and writes them serially from one goroutine,
// which keeps audit writes off the request path and suits SQLite's single
// writer.
type AsyncRecorder struct {
	repo   Repository
	logger Logger
	ch     chan *AuditLog
	done   chan struct{}
	once   sync.Once
}

// NewAsyncRecorder creates a recorder. Call Run to start draining.
func NewAsyncRecorder(repo Repository, logger Logger) *AsyncRecorder {
	return &AsyncRecorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan *AuditLog, recorderBuffer),
		done:   make(chan struct{}),
	}
}

// Record enqueues entry, dropping it with a warning when the buffer is full.
func (r *AsyncRecorder) Record(entry *AuditLog) {
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit buffer full, dropping entry",
			"action", entry.Action,
			"target_type", entry.TargetType,
		)
	}
}

// Run drains the queue until ctx is cancelled, then writes whatever is
// still buffered before returning.
func (r *AsyncRecorder) Run(ctx context.Context) {
	defer r.once.Do(func() { close(r.done) })

	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (r *AsyncRecorder) Done() <-chan struct{} {
	return r.done
}

func (r *AsyncRecorder) write(entry *AuditLog) {
	// Shutdown drain must not be cut short by the cancelled run context.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"target_type", entry.TargetType,
			"error", err,
		)
	}
}

// SyncRecorder writes through immediately. Used by command-line tools and tests.
type SyncRecorder struct {
	Repo   Repository
	Logger Logger
}

// Record writes entry and logs any failure.
func (r SyncRecorder) Record(entry *AuditLog) {
	if err := r.Repo.Create(context.Background(), entry); err != nil && r.Logger != nil {
		r.Logger.Error("audit log write failed", "action", entry.Action, "error", err)
	}
}

// Discard drops every entry.
type Discard struct{}

// Record implements Recorder.
func (Discard) Record(*AuditLog) {}
