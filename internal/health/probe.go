// Package health exposes process-wide liveness and readiness state derived
// from pipeline counters. The probe is the single place other components
// report their counters to; reads are lock-free.
package health

import (
	"sync/atomic"
)

// Probe aggregates counters mutated by the pipeline, cache, and audit
// recorder. All fields are atomics; the probe itself never blocks.
type Probe struct {
	capacity int64

	startupFailed atomic.Bool

	inFlight  atomic.Int64
	admitted  atomic.Uint64
	denied    atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	timedOut  atomic.Uint64

	cacheHits     atomic.Uint64
	cacheMisses   atomic.Uint64
	auditFailures atomic.Uint64
}

// Snapshot is the externally visible read-only view of the probe.
type Snapshot struct {
	InFlight      int64   `json:"in_flight"`
	Admitted      uint64  `json:"admitted"`
	Denied        uint64  `json:"denied"`
	Succeeded     uint64  `json:"succeeded"`
	Failed        uint64  `json:"failed"`
	TimedOut      uint64  `json:"timed_out"`
	CacheHits     uint64  `json:"cache_hits"`
	CacheMisses   uint64  `json:"cache_misses"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
	AuditFailures uint64  `json:"audit_failures"`
	Ready         bool    `json:"ready"`
}

// New creates a probe for a governor of the given capacity.
func New(capacity int) *Probe {
	return &Probe{capacity: int64(capacity)}
}

// MarkStartupFailed flips readiness off permanently. Used when a required
// dependency could not be initialized.
func (p *Probe) MarkStartupFailed() {
	p.startupFailed.Store(true)
}

// OperationAdmitted records a granted admission ticket.
func (p *Probe) OperationAdmitted() {
	p.admitted.Add(1)
	p.inFlight.Add(1)
}

// OperationFinished releases the in-flight slot and records the terminal
// outcome. Denied operations never held a slot and go through OperationDenied.
func (p *Probe) OperationFinished(outcome Outcome) {
	p.inFlight.Add(-1)
	switch outcome {
	case OutcomeSucceeded:
		p.succeeded.Add(1)
	case OutcomeFailed:
		p.failed.Add(1)
	case OutcomeTimedOut:
		p.timedOut.Add(1)
	}
}

// OperationFailed records a failure for a request that never held an
// admission slot, keeping outcome totals aligned with the audit log.
func (p *Probe) OperationFailed() {
	p.failed.Add(1)
}

// OperationDenied records a request rejected before admission.
func (p *Probe) OperationDenied() {
	p.denied.Add(1)
}

// CacheServed records a cache hit that completed a request without execution.
func (p *Probe) CacheServed() {
	p.cacheHits.Add(1)
	p.succeeded.Add(1)
}

// CacheMissed records a cache lookup that found nothing usable.
func (p *Probe) CacheMissed() {
	p.cacheMisses.Add(1)
}

// AuditFailed records an audit entry that could not be persisted.
func (p *Probe) AuditFailed() {
	p.auditFailures.Add(1)
}

// Outcome mirrors the pipeline's terminal outcomes for counter routing.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Ready reports readiness: startup completed and the governor is not
// saturated. A full governor means new work would be rejected, so the
// instance stops advertising itself until capacity frees up.
func (p *Probe) Ready() bool {
	if p.startupFailed.Load() {
		return false
	}
	return p.capacity == 0 || p.inFlight.Load() < p.capacity
}

// Snapshot returns a point-in-time copy of all counters. Counters are read
// individually without a global lock; slight skew between fields is fine for
// an observability surface.
func (p *Probe) Snapshot() Snapshot {
	hits := p.cacheHits.Load()
	misses := p.cacheMisses.Load()
	ratio := 0.0
	if hits+misses > 0 {
		ratio = float64(hits) / float64(hits+misses)
	}
	return Snapshot{
		InFlight:      p.inFlight.Load(),
		Admitted:      p.admitted.Load(),
		Denied:        p.denied.Load(),
		Succeeded:     p.succeeded.Load(),
		Failed:        p.failed.Load(),
		TimedOut:      p.timedOut.Load(),
		CacheHits:     hits,
		CacheMisses:   misses,
		CacheHitRatio: ratio,
		AuditFailures: p.auditFailures.Load(),
		Ready:         p.Ready(),
	}
}
