package audit

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store persists audit entries. Implementations must be safe for concurrent
// Append calls.
type Store interface {
	Append(ctx context.Context, entry Entry) error
}

// FailureSink observes persistence failures. The health probe implements it.
type FailureSink interface {
	AuditFailed()
}

// Recorder assigns sequence numbers and hands entries to the store. A store
// failure never propagates to the caller: it is logged and counted, and the
// operation that triggered the entry proceeds untouched.
type Recorder struct {
	store    Store
	logger   *slog.Logger
	sequence atomic.Uint64
	failures atomic.Uint64
	sink     FailureSink
	enabled  bool
}

type Option func(*Recorder)

// WithFailureSink routes persistence failures into an external counter.
func WithFailureSink(sink FailureSink) Option {
	return func(r *Recorder) {
		r.sink = sink
	}
}

// WithDisabled turns recording into sequence-only bookkeeping. Used when the
// audit flag is off; callers do not need to know the difference.
func WithDisabled() Option {
	return func(r *Recorder) {
		r.enabled = false
	}
}

// NewRecorder constructs a Recorder writing to store.
func NewRecorder(store Store, logger *slog.Logger, opts ...Option) *Recorder {
	r := &Recorder{store: store, logger: logger, enabled: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps the entry with the next sequence number and timestamp, then
// appends it. The sequence is taken from a single atomic counter, so entries
// from concurrent requests never collide or skip.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	entry.Sequence = r.sequence.Add(1)
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if !r.enabled {
		return
	}

	// Detach from the request context: the entry should outlive a cancelled
	// request, and a hung store must not hold the pipeline hostage.
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.Append(appendCtx, entry); err != nil {
		r.failures.Add(1)
		if r.sink != nil {
			r.sink.AuditFailed()
		}
		r.logger.Error("audit append failed",
			"error", err,
			"sequence", entry.Sequence,
			"request_id", entry.RequestID,
			"operation", entry.Operation,
		)
	}
}

// Failures reports how many entries could not be persisted.
func (r *Recorder) Failures() uint64 {
	return r.failures.Load()
}

// LastSequence reports the most recently assigned sequence number.
func (r *Recorder) LastSequence() uint64 {
	return r.sequence.Load()
}
