package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AsyncStore decouples the recorder from a slow backing store. Append drops
// the entry into a buffered inbox and returns; a single worker goroutine
// drains the inbox into the wrapped store. A full inbox fails the Append,
// which the recorder already treats as a counted, non-fatal event.
type AsyncStore struct {
	store  Store
	inbox  chan Entry
	logger *slog.Logger
}

// ErrInboxFull signals that the async buffer had no room for the entry.
var ErrInboxFull = errors.New("audit inbox full")

func NewAsyncStore(store Store, buffer int, logger *slog.Logger) *AsyncStore {
	if buffer < 1 {
		buffer = 1
	}
	return &AsyncStore{
		store:  store,
		inbox:  make(chan Entry, buffer),
		logger: logger,
	}
}

func (s *AsyncStore) Append(_ context.Context, entry Entry) error {
	select {
	case s.inbox <- entry:
		return nil
	default:
		return ErrInboxFull
	}
}

// Run drains the inbox until ctx is cancelled, then flushes whatever is
// already buffered before returning.
func (s *AsyncStore) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case entry := <-s.inbox:
			s.persist(entry)
		}
	}
}

func (s *AsyncStore) flush() {
	for {
		select {
		case entry := <-s.inbox:
			s.persist(entry)
		default:
			return
		}
	}
}

func (s *AsyncStore) persist(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.Error("audit worker append failed",
			"error", err,
			"sequence", entry.Sequence,
		)
	}
}
