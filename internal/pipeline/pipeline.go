// Package pipeline orchestrates the governed execution of one operation:
// authenticate, authorize, consult the result cache, admit against the
// concurrency governor, execute with a deadline, audit every transition, and
// write successful cacheable results back through the cache.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"vcgate/internal/audit"
	"vcgate/internal/cache"
	"vcgate/internal/catalog"
	"vcgate/internal/executor"
	"vcgate/internal/governor"
	"vcgate/internal/health"
	"vcgate/internal/identity"
	"vcgate/internal/platform/metrics"
	"vcgate/internal/policy"
	dErrors "vcgate/pkg/domain-errors"
	"vcgate/pkg/platform/sentinel"
)

// Request is one inbound operation invocation. Read-only once created.
type Request struct {
	Operation  string
	Params     map[string]any
	Credential string
	RequestID  string
	ReceivedAt time.Time
}

// Response carries the operation result back to the transport.
type Response struct {
	RequestID string
	Result    json.RawMessage
	CacheHit  bool
}

// Notifier receives fire-and-forget operation events after terminal states.
type Notifier interface {
	Notify(ctx context.Context, eventName string, payload map[string]any) error
}

// Pipeline wires the governed execution path. Construct with New; all
// dependencies except the notifier and metrics are required.
type Pipeline struct {
	catalog  *catalog.Catalog
	verifier *identity.Service
	policy   *policy.Snapshot
	cache    cache.Store
	cacheTTL time.Duration
	governor *governor.Governor
	recorder *audit.Recorder
	exec     executor.Executor
	notifier Notifier
	logger   *slog.Logger
	probe    *health.Probe
	metrics  *metrics.Metrics
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithNotifier attaches the fire-and-forget event sink.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New constructs a Pipeline.
func New(
	cat *catalog.Catalog,
	verifier *identity.Service,
	pol *policy.Snapshot,
	cacheStore cache.Store,
	cacheTTL time.Duration,
	gov *governor.Governor,
	recorder *audit.Recorder,
	exec executor.Executor,
	probe *health.Probe,
	logger *slog.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		catalog:  cat,
		verifier: verifier,
		policy:   pol,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		governor: gov,
		recorder: recorder,
		exec:     exec,
		probe:    probe,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one request through the full pipeline. Every terminal state
// is audited; a panic anywhere below converts to CodeInternal rather than
// taking down the serving loop.
func (p *Pipeline) Execute(ctx context.Context, req Request) (resp Response, err error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}
	resp.RequestID = req.RequestID

	admitted := false
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic",
				"panic", r,
				"request_id", req.RequestID,
				"operation", req.Operation,
			)
			p.record(ctx, req, "", audit.OutcomeFailed, "panic")
			// A panic past admission is already counted by the release
			// defer; one before it has no slot to release.
			if !admitted {
				p.probe.OperationFailed()
				p.metrics.ObserveOutcome(string(audit.OutcomeFailed))
			}
			err = dErrors.Newf(dErrors.CodeInternal, "internal error in operation %q", req.Operation)
		}
	}()

	// Authenticating.
	ident, err := p.verifier.Verify(req.Credential)
	if err != nil {
		p.deny(ctx, req, "", "unauthenticated")
		return resp, err
	}

	// Authorizing.
	if p.policy.Authorize(ident, req.Operation) == policy.Deny {
		p.deny(ctx, req, ident.Subject, "forbidden:"+strings.Join(ident.Roles, ","))
		return resp, dErrors.Newf(dErrors.CodeForbidden, "role not permitted to call %q", req.Operation)
	}

	op, ok := p.catalog.Lookup(req.Operation)
	if !ok {
		p.deny(ctx, req, ident.Subject, "invalid-request")
		return resp, dErrors.Newf(dErrors.CodeValidation, "unknown operation %q", req.Operation)
	}
	if err := op.ValidateParams(req.Params); err != nil {
		p.deny(ctx, req, ident.Subject, "invalid-request")
		return resp, err
	}

	// CacheCheck: read-only fast path.
	var fingerprint string
	if op.Cacheable {
		fingerprint, err = cache.Fingerprint(op.Name, req.Params)
		if err != nil {
			return resp, dErrors.Wrap(err, dErrors.CodeInternal, "fingerprint operation")
		}
		if entry, cacheErr := p.cache.Get(ctx, fingerprint); cacheErr == nil {
			p.record(ctx, req, ident.Subject, audit.OutcomeSucceeded, "cache-hit")
			p.probe.CacheServed()
			if p.metrics != nil {
				p.metrics.CacheHits.Inc()
			}
			p.metrics.ObserveOutcome(string(audit.OutcomeSucceeded))
			resp.Result = entry.Result
			resp.CacheHit = true
			p.notify(req, ident.Subject, audit.OutcomeSucceeded)
			return resp, nil
		} else if !errors.Is(cacheErr, sentinel.ErrNotFound) {
			// A degraded cache backend reads as a miss.
			p.logger.Warn("cache read failed", "error", cacheErr, "request_id", req.RequestID)
		}
		p.probe.CacheMissed()
		if p.metrics != nil {
			p.metrics.CacheMisses.Inc()
		}
	}

	// Admitting.
	ticket, err := p.governor.Admit(ctx)
	if err != nil {
		switch {
		case errors.Is(err, governor.ErrOverloaded), errors.Is(err, governor.ErrQueueTimeout):
			p.deny(ctx, req, ident.Subject, "overloaded")
			return resp, dErrors.Wrap(err, dErrors.CodeOverloaded, "operation capacity exhausted")
		default:
			// Caller abandoned the request while queued.
			p.record(ctx, req, ident.Subject, audit.OutcomeFailed, "cancelled")
			p.probe.OperationDenied()
			p.metrics.ObserveOutcome(string(audit.OutcomeFailed))
			return resp, dErrors.Wrap(err, dErrors.CodeInternal, "admission interrupted")
		}
	}

	admitted = true
	p.record(ctx, req, ident.Subject, audit.OutcomeAdmitted, "")
	p.probe.OperationAdmitted()
	if p.metrics != nil {
		p.metrics.InFlight.Inc()
	}

	outcome := audit.OutcomeFailed
	defer func() {
		ticket.Release()
		p.probe.OperationFinished(health.Outcome(outcome))
		if p.metrics != nil {
			p.metrics.InFlight.Dec()
		}
		p.metrics.ObserveOutcome(string(outcome))
		p.notify(req, ident.Subject, outcome)
	}()

	// Executing.
	execCtx, cancel := p.governor.OperationContext(ctx, op.Timeout)
	defer cancel()

	start := time.Now()
	result, execErr := p.exec.Execute(execCtx, op.Name, req.Params)
	if p.metrics != nil {
		p.metrics.OperationDuration.Observe(time.Since(start).Seconds())
	}

	if execErr != nil {
		switch {
		case ctx.Err() != nil:
			// Caller cancellation wins over the operation deadline.
			outcome = audit.OutcomeFailed
			p.record(ctx, req, ident.Subject, outcome, "cancelled")
			return resp, dErrors.Wrap(execErr, dErrors.CodeInternal, "operation cancelled")
		case errors.Is(execErr, context.DeadlineExceeded):
			outcome = audit.OutcomeTimedOut
			p.record(ctx, req, ident.Subject, outcome, "deadline exceeded")
			return resp, dErrors.Newf(dErrors.CodeTimeout, "operation %q timed out", op.Name)
		default:
			outcome = audit.OutcomeFailed
			detail := backendDetail(execErr)
			p.record(ctx, req, ident.Subject, outcome, detail)
			if dErrors.HasCode(execErr, dErrors.CodeValidation) {
				return resp, execErr
			}
			return resp, dErrors.Wrap(execErr, dErrors.CodeBackend, fmt.Sprintf("operation %q failed: %s", op.Name, detail))
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		outcome = audit.OutcomeFailed
		p.record(ctx, req, ident.Subject, outcome, "unencodable result")
		return resp, dErrors.Wrap(err, dErrors.CodeInternal, "encode operation result")
	}

	if op.Cacheable {
		if putErr := p.cache.Put(ctx, fingerprint, raw, p.cacheTTL); putErr != nil {
			p.logger.Warn("cache write failed", "error", putErr, "request_id", req.RequestID)
		}
	}

	outcome = audit.OutcomeSucceeded
	p.record(ctx, req, ident.Subject, outcome, "")
	resp.Result = raw
	return resp, nil
}

func (p *Pipeline) deny(ctx context.Context, req Request, subject, detail string) {
	p.record(ctx, req, subject, audit.OutcomeDenied, detail)
	p.probe.OperationDenied()
	p.metrics.ObserveOutcome(string(audit.OutcomeDenied))
}

func (p *Pipeline) record(ctx context.Context, req Request, subject string, outcome audit.Outcome, detail string) {
	p.recorder.Record(ctx, audit.Entry{
		RequestID: req.RequestID,
		Subject:   subject,
		Operation: req.Operation,
		Outcome:   outcome,
		Detail:    detail,
	})
}

// notify dispatches the terminal-state event to the notifier on a detached
// goroutine. The notifier's latency and failures never touch the response
// path.
func (p *Pipeline) notify(req Request, subject string, outcome audit.Outcome) {
	if p.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := p.notifier.Notify(ctx, "operation_"+string(outcome), map[string]any{
			"request_id": req.RequestID,
			"operation":  req.Operation,
			"subject":    subject,
		})
		if err != nil {
			p.logger.Debug("notifier delivery failed",
				"error", err,
				"request_id", req.RequestID,
			)
		}
	}()
}

func backendDetail(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrUnavailable):
		return "backend_unavailable"
	case errors.Is(err, sentinel.ErrNotFound):
		return "not_found"
	case errors.Is(err, sentinel.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, sentinel.ErrRejected):
		return "backend_rejected"
	case dErrors.HasCode(err, dErrors.CodeValidation):
		return "invalid_parameters"
	default:
		return "backend_error"
	}
}
