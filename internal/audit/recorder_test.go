package audit

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
)

type failingStore struct {
	err error
}

func (f *failingStore) Append(context.Context, Entry) error { return f.err }

type countingSink struct {
	mu    sync.Mutex
	count int
}

func (c *countingSink) AuditFailed() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

type RecorderSuite struct {
	suite.Suite
	store    *InMemoryStore
	recorder *Recorder
	ctx      context.Context
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.recorder = NewRecorder(s.store, slog.New(slog.DiscardHandler))
	s.ctx = context.Background()
}

func (s *RecorderSuite) TestRecord() {
	s.Run("stamps sequence and timestamp", func() {
		s.recorder.Record(s.ctx, Entry{
			RequestID: "req-1",
			Subject:   "alice",
			Operation: "list_vms",
			Outcome:   OutcomeSucceeded,
		})

		entries, err := s.store.List(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(uint64(1), entries[0].Sequence)
		s.False(entries[0].Timestamp.IsZero())
	})

	s.Run("sequences are strictly increasing", func() {
		s.recorder.Record(s.ctx, Entry{RequestID: "req-2", Outcome: OutcomeAdmitted})
		s.recorder.Record(s.ctx, Entry{RequestID: "req-2", Outcome: OutcomeSucceeded})

		entries, err := s.store.ListByRequest(s.ctx, "req-2")
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Greater(entries[1].Sequence, entries[0].Sequence)
	})

	s.Run("records survive an already cancelled request context", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()

		s.recorder.Record(ctx, Entry{RequestID: "req-3", Outcome: OutcomeFailed})

		entries, err := s.store.ListByRequest(s.ctx, "req-3")
		s.Require().NoError(err)
		s.Len(entries, 1)
	})
}

func (s *RecorderSuite) TestConcurrentSequencing() {
	// Many goroutines recording at once must produce a gap-free, duplicate-free
	// sequence range.
	const writers = 100

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.recorder.Record(s.ctx, Entry{RequestID: "req-load", Outcome: OutcomeAdmitted})
		}()
	}
	wg.Wait()

	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, writers)

	seqs := make([]uint64, 0, writers)
	for _, e := range entries {
		seqs = append(seqs, e.Sequence)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		s.Equal(uint64(i+1), seq)
	}
	s.Equal(uint64(writers), s.recorder.LastSequence())
}

func (s *RecorderSuite) TestStoreFailure() {
	sink := &countingSink{}
	recorder := NewRecorder(
		&failingStore{err: errors.New("disk full")},
		slog.New(slog.DiscardHandler),
		WithFailureSink(sink),
	)

	// A failing store never panics or propagates; it is counted.
	recorder.Record(s.ctx, Entry{RequestID: "req-f", Outcome: OutcomeSucceeded})
	recorder.Record(s.ctx, Entry{RequestID: "req-f", Outcome: OutcomeFailed})

	s.Equal(uint64(2), recorder.Failures())
	s.Equal(2, sink.count)
	s.Equal(uint64(2), recorder.LastSequence())
}

func (s *RecorderSuite) TestDisabled() {
	recorder := NewRecorder(s.store, slog.New(slog.DiscardHandler), WithDisabled())

	recorder.Record(s.ctx, Entry{RequestID: "req-d", Outcome: OutcomeSucceeded})

	// Sequencing continues so re-enabling never reuses numbers, but nothing
	// reaches the store.
	s.Equal(uint64(1), recorder.LastSequence())
	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(entries)
}

type AsyncStoreSuite struct {
	suite.Suite
	ctx context.Context
}

func TestAsyncStoreSuite(t *testing.T) {
	suite.Run(t, new(AsyncStoreSuite))
}

func (s *AsyncStoreSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *AsyncStoreSuite) TestDrainAndFlush() {
	backing := NewInMemoryStore()
	async := NewAsyncStore(backing, 16, slog.New(slog.DiscardHandler))

	for i := range 5 {
		s.Require().NoError(async.Append(s.ctx, Entry{Sequence: uint64(i + 1)}))
	}

	// Run flushes buffered entries on cancellation.
	runCtx, cancel := context.WithCancel(s.ctx)
	cancel()
	err := async.Run(runCtx)
	s.ErrorIs(err, context.Canceled)

	entries, listErr := backing.List(s.ctx)
	s.Require().NoError(listErr)
	s.Len(entries, 5)
}

func (s *AsyncStoreSuite) TestInboxFull() {
	async := NewAsyncStore(NewInMemoryStore(), 1, slog.New(slog.DiscardHandler))

	s.Require().NoError(async.Append(s.ctx, Entry{Sequence: 1}))
	s.ErrorIs(async.Append(s.ctx, Entry{Sequence: 2}), ErrInboxFull)
}
