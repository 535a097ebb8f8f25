package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vcgate/internal/audit"
	"vcgate/internal/cache"
	"vcgate/internal/catalog"
	"vcgate/internal/governor"
	"vcgate/internal/health"
	"vcgate/internal/identity"
	"vcgate/internal/policy"
	dErrors "vcgate/pkg/domain-errors"
)

const testTokenTTL = time.Minute

// fakeExecutor counts calls and simulates latency, failures, and panics.
type fakeExecutor struct {
	mu    sync.Mutex
	calls int

	delay  time.Duration
	err    error
	panics bool
	result any
}

func (f *fakeExecutor) Execute(ctx context.Context, operation string, params map[string]any) (any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panics {
		panic("executor blew up")
	}
	if f.delay > 0 {
		timer := time.NewTimer(f.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return map[string]any{"operation": operation, "ok": true}, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// panickyStore simulates a cache backend bug surfacing as a panic.
type panickyStore struct{}

func (panickyStore) Get(context.Context, string) (cache.Entry, error) {
	panic("cache store blew up")
}

func (panickyStore) Put(context.Context, string, json.RawMessage, time.Duration) error {
	return nil
}

type PipelineSuite struct {
	suite.Suite
	ctx      context.Context
	verifier *identity.Service
	store    *audit.InMemoryStore
	recorder *audit.Recorder
	probe    *health.Probe
	exec     *fakeExecutor
	pipe     *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()
	s.verifier = identity.New("pipeline-test-key", "vcgate-test", 0)
	s.exec = &fakeExecutor{}
	s.buildPipeline(10, 0, time.Second, 5*time.Minute)
}

// buildPipeline rebuilds the pipeline under test with fresh stores.
func (s *PipelineSuite) buildPipeline(capacity int, queueWait, opTimeout, cacheTTL time.Duration) {
	cat, err := catalog.Default(false)
	s.Require().NoError(err)
	pol, err := policy.NewSnapshot(policy.DefaultRules(), true)
	s.Require().NoError(err)

	s.store = audit.NewInMemoryStore()
	s.probe = health.New(capacity)
	logger := slog.New(slog.DiscardHandler)
	s.recorder = audit.NewRecorder(s.store, logger, audit.WithFailureSink(s.probe))

	s.pipe = New(
		cat, s.verifier, pol,
		cache.NewInMemoryStore(), cacheTTL,
		governor.New(capacity, queueWait, opTimeout),
		s.recorder, s.exec,
		s.probe, logger,
	)
}

func (s *PipelineSuite) token(subject string, roles ...string) string {
	token, err := s.verifier.IssueToken(subject, roles, testTokenTTL)
	s.Require().NoError(err)
	return token
}

func (s *PipelineSuite) outcomes(requestID string) []audit.Outcome {
	entries, err := s.store.ListByRequest(s.ctx, requestID)
	s.Require().NoError(err)
	outcomes := make([]audit.Outcome, 0, len(entries))
	for _, e := range entries {
		outcomes = append(outcomes, e.Outcome)
	}
	return outcomes
}

func (s *PipelineSuite) TestSuccess() {
	resp, err := s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
		RequestID:  "req-ok",
	})
	s.Require().NoError(err)
	s.Equal("req-ok", resp.RequestID)
	s.False(resp.CacheHit)
	s.JSONEq(`{"operation":"start_vm","ok":true}`, string(resp.Result))

	s.Equal([]audit.Outcome{audit.OutcomeAdmitted, audit.OutcomeSucceeded}, s.outcomes("req-ok"))
	s.Equal(uint64(1), s.probe.Snapshot().Succeeded)
	s.Equal(int64(0), s.probe.Snapshot().InFlight)

	entries, err := s.store.ListByRequest(s.ctx, "req-ok")
	s.Require().NoError(err)
	s.Equal("alice", entries[0].Subject)
	s.Equal("start_vm", entries[0].Operation)
}

func (s *PipelineSuite) TestRequestIDAssigned() {
	resp, err := s.pipe.Execute(s.ctx, Request{
		Operation:  "list_vms",
		Credential: s.token("alice", "admin"),
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.RequestID)
}

func (s *PipelineSuite) TestAuthenticationFailures() {
	s.Run("expired credential", func() {
		expired, err := s.verifier.IssueToken("alice", []string{"admin"}, -time.Minute)
		s.Require().NoError(err)

		_, err = s.pipe.Execute(s.ctx, Request{
			Operation:  "list_vms",
			Credential: expired,
			RequestID:  "req-expired",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
		s.Equal([]audit.Outcome{audit.OutcomeDenied}, s.outcomes("req-expired"))
		s.Zero(s.exec.callCount())
	})

	s.Run("missing credential", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation: "list_vms",
			RequestID: "req-nocred",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
		s.Zero(s.exec.callCount())
	})

	s.Run("denied entries carry the detail", func() {
		entries, err := s.store.ListByRequest(s.ctx, "req-expired")
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal("unauthenticated", entries[0].Detail)
		s.Empty(entries[0].Subject)
	})
}

func (s *PipelineSuite) TestAuthorization() {
	s.Run("viewer cannot start a vm", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "start_vm",
			Params:     map[string]any{"vm_name": "web-01"},
			Credential: s.token("bob", "viewer"),
			RequestID:  "req-forbidden",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Zero(s.exec.callCount())

		entries, listErr := s.store.ListByRequest(s.ctx, "req-forbidden")
		s.Require().NoError(listErr)
		s.Require().Len(entries, 1)
		s.Equal(audit.OutcomeDenied, entries[0].Outcome)
		s.Equal("forbidden:viewer", entries[0].Detail)
		s.Equal("bob", entries[0].Subject)
	})

	s.Run("viewer reads fine", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "list_vms",
			Credential: s.token("bob", "viewer"),
		})
		s.NoError(err)
	})
}

func (s *PipelineSuite) TestValidation() {
	s.Run("unknown operation", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "explode_vm",
			Credential: s.token("alice", "admin"),
			RequestID:  "req-unknown",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal([]audit.Outcome{audit.OutcomeDenied}, s.outcomes("req-unknown"))
	})

	s.Run("missing required parameter", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "get_vm_details",
			Credential: s.token("alice", "admin"),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("wrong parameter type", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "stop_vm",
			Params:     map[string]any{"vm_name": "web-01", "force": "very"},
			Credential: s.token("alice", "admin"),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Zero(s.exec.callCount())
}

func (s *PipelineSuite) TestCaching() {
	req := Request{
		Operation:  "list_vms",
		Credential: s.token("alice", "admin"),
	}

	s.Run("first call executes, second is served from cache", func() {
		first, err := s.pipe.Execute(s.ctx, req)
		s.Require().NoError(err)
		s.False(first.CacheHit)

		second, err := s.pipe.Execute(s.ctx, req)
		s.Require().NoError(err)
		s.True(second.CacheHit)
		s.JSONEq(string(first.Result), string(second.Result))
		s.Equal(1, s.exec.callCount())
	})

	s.Run("cache is shared across authorized callers", func() {
		resp, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "list_vms",
			Credential: s.token("bob", "viewer"),
		})
		s.Require().NoError(err)
		s.True(resp.CacheHit)
		s.Equal(1, s.exec.callCount())
	})

	s.Run("cache hits still pass authorization", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "list_vms",
			Credential: "garbage",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	s.Run("different parameters miss", func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "get_vm_details",
			Params:     map[string]any{"vm_name": "web-01"},
			Credential: s.token("alice", "admin"),
		})
		s.Require().NoError(err)
		s.Equal(2, s.exec.callCount())
	})

	s.Run("mutating operations never cache", func() {
		for range 2 {
			_, err := s.pipe.Execute(s.ctx, Request{
				Operation:  "start_vm",
				Params:     map[string]any{"vm_name": "web-01"},
				Credential: s.token("alice", "admin"),
			})
			s.Require().NoError(err)
		}
		s.Equal(4, s.exec.callCount())
	})

	s.Run("cache hit audits success without admission", func() {
		resp, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "list_vms",
			Credential: s.token("alice", "admin"),
			RequestID:  "req-hit",
		})
		s.Require().NoError(err)
		s.True(resp.CacheHit)

		entries, listErr := s.store.ListByRequest(s.ctx, "req-hit")
		s.Require().NoError(listErr)
		s.Require().Len(entries, 1)
		s.Equal(audit.OutcomeSucceeded, entries[0].Outcome)
		s.Equal("cache-hit", entries[0].Detail)
	})
}

func (s *PipelineSuite) TestCacheExpiry() {
	s.buildPipeline(10, 0, time.Second, 40*time.Millisecond)
	req := Request{
		Operation:  "list_vms",
		Credential: s.token("alice", "admin"),
	}

	_, err := s.pipe.Execute(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(1, s.exec.callCount())

	time.Sleep(80 * time.Millisecond)

	resp, err := s.pipe.Execute(s.ctx, req)
	s.Require().NoError(err)
	s.False(resp.CacheHit)
	s.Equal(2, s.exec.callCount())
}

func (s *PipelineSuite) TestOverload() {
	s.buildPipeline(1, 0, time.Second, 5*time.Minute)
	s.exec.delay = 150 * time.Millisecond

	admin := s.token("alice", "admin")
	firstDone := make(chan error, 1)
	go func() {
		_, err := s.pipe.Execute(s.ctx, Request{
			Operation:  "start_vm",
			Params:     map[string]any{"vm_name": "web-01"},
			Credential: admin,
		})
		firstDone <- err
	}()

	time.Sleep(30 * time.Millisecond)

	_, err := s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "db-01"},
		Credential: admin,
		RequestID:  "req-over",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeOverloaded))

	entries, listErr := s.store.ListByRequest(s.ctx, "req-over")
	s.Require().NoError(listErr)
	s.Require().Len(entries, 1)
	s.Equal(audit.OutcomeDenied, entries[0].Outcome)
	s.Equal("overloaded", entries[0].Detail)

	s.NoError(<-firstDone)

	// Capacity is back after the first operation finished.
	_, err = s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-02"},
		Credential: admin,
	})
	s.NoError(err)
}

func (s *PipelineSuite) TestTimeout() {
	s.buildPipeline(1, 0, 30*time.Millisecond, 5*time.Minute)
	s.exec.delay = time.Second

	_, err := s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
		RequestID:  "req-slow",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal([]audit.Outcome{audit.OutcomeAdmitted, audit.OutcomeTimedOut}, s.outcomes("req-slow"))
	s.Equal(uint64(1), s.probe.Snapshot().TimedOut)

	// The slot was released despite the timeout.
	s.exec.delay = 0
	_, err = s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
	})
	s.NoError(err)
	s.Equal(int64(0), s.probe.Snapshot().InFlight)
}

func (s *PipelineSuite) TestCallerCancellation() {
	s.exec.delay = time.Second

	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := s.pipe.Execute(ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
		RequestID:  "req-cancel",
	})
	s.Require().Error(err)
	s.False(dErrors.HasCode(err, dErrors.CodeTimeout))

	entries, listErr := s.store.ListByRequest(s.ctx, "req-cancel")
	s.Require().NoError(listErr)
	s.Require().Len(entries, 2)
	s.Equal(audit.OutcomeFailed, entries[1].Outcome)
	s.Equal("cancelled", entries[1].Detail)
}

func (s *PipelineSuite) TestBackendFailure() {
	s.exec.err = errors.New("hypervisor unreachable")

	_, err := s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
		RequestID:  "req-backend",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeBackend))
	s.Equal([]audit.Outcome{audit.OutcomeAdmitted, audit.OutcomeFailed}, s.outcomes("req-backend"))
}

func (s *PipelineSuite) TestPanicRecovery() {
	s.exec.panics = true

	_, err := s.pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
		RequestID:  "req-panic",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(int64(0), s.probe.Snapshot().InFlight)

	// And the pipeline still works afterwards.
	s.exec.panics = false
	_, err = s.pipe.Execute(s.ctx, Request{
		Operation:  "list_vms",
		Credential: s.token("alice", "admin"),
	})
	s.NoError(err)
}

func (s *PipelineSuite) TestPanicBeforeAdmission() {
	// A cache backend panic happens before any admission slot is held; the
	// failure must still show up in both the audit log and probe counters.
	cat, err := catalog.Default(false)
	s.Require().NoError(err)
	pol, err := policy.NewSnapshot(policy.DefaultRules(), true)
	s.Require().NoError(err)

	s.store = audit.NewInMemoryStore()
	s.probe = health.New(10)
	logger := slog.New(slog.DiscardHandler)
	s.recorder = audit.NewRecorder(s.store, logger, audit.WithFailureSink(s.probe))
	pipe := New(
		cat, s.verifier, pol,
		panickyStore{}, time.Minute,
		governor.New(10, 0, time.Second),
		s.recorder, s.exec,
		s.probe, logger,
	)

	_, err = pipe.Execute(s.ctx, Request{
		Operation:  "list_vms",
		Credential: s.token("alice", "admin"),
		RequestID:  "req-cache-panic",
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(0, s.exec.callCount())

	snap := s.probe.Snapshot()
	s.Equal(uint64(1), snap.Failed)
	s.Equal(uint64(0), snap.Admitted)
	s.Equal(int64(0), snap.InFlight)
	s.Equal([]audit.Outcome{audit.OutcomeFailed}, s.outcomes("req-cache-panic"))
}

func (s *PipelineSuite) TestConcurrentLoadSequencing() {
	// 100 concurrent mutating requests leave a duplicate-free, gap-free audit
	// sequence across all requests.
	const parallel = 100
	s.buildPipeline(parallel, 0, time.Second, 5*time.Minute)

	admin := s.token("alice", "admin")
	var wg sync.WaitGroup
	for i := range parallel {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.pipe.Execute(s.ctx, Request{
				Operation:  "stop_vm",
				Params:     map[string]any{"vm_name": fmt.Sprintf("vm-%03d", i)},
				Credential: admin,
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 2*parallel)

	seqs := make([]uint64, 0, len(entries))
	for _, e := range entries {
		seqs = append(seqs, e.Sequence)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	for i, seq := range seqs {
		s.Equal(uint64(i+1), seq)
	}
	s.Equal(int64(0), s.probe.Snapshot().InFlight)
	s.Equal(uint64(parallel), s.probe.Snapshot().Succeeded)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	done   chan struct{}
}

func (n *recordingNotifier) Notify(_ context.Context, eventName string, _ map[string]any) error {
	n.mu.Lock()
	n.events = append(n.events, eventName)
	n.mu.Unlock()
	select {
	case n.done <- struct{}{}:
	default:
	}
	return nil
}

func (s *PipelineSuite) TestNotifier() {
	notifier := &recordingNotifier{done: make(chan struct{}, 1)}
	cat, err := catalog.Default(false)
	s.Require().NoError(err)
	pol, err := policy.NewSnapshot(policy.DefaultRules(), true)
	s.Require().NoError(err)
	logger := slog.New(slog.DiscardHandler)

	pipe := New(
		cat, s.verifier, pol,
		cache.NewInMemoryStore(), 5*time.Minute,
		governor.New(5, 0, time.Second),
		audit.NewRecorder(audit.NewInMemoryStore(), logger),
		s.exec,
		health.New(5), logger,
		WithNotifier(notifier),
	)

	_, err = pipe.Execute(s.ctx, Request{
		Operation:  "start_vm",
		Params:     map[string]any{"vm_name": "web-01"},
		Credential: s.token("alice", "admin"),
	})
	s.Require().NoError(err)

	select {
	case <-notifier.done:
	case <-time.After(time.Second):
		s.Fail("notifier was never invoked")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	s.Equal([]string{"operation_succeeded"}, notifier.events)
}
