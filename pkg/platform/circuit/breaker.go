// Package circuit provides a small circuit breaker for best-effort outbound
// integrations. Consecutive failures open the circuit; after a cooldown the
// breaker turns half-open and lets calls through again, and consecutive
// successes close it. Callers use the open state to skip calls or take a
// fallback path.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker's current position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// StateChange reports a transition caused by a recorded outcome.
type StateChange struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures and successes for one dependency.
type Breaker struct {
	mu               sync.Mutex
	name             string
	state            State
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	failures         int
	successes        int
	openUntil        time.Time

	// now is swappable for cooldown tests.
	now func() time.Time
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		b.failureThreshold = n
	}
}

// WithSuccessThreshold sets how many consecutive successes close it again.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		b.successThreshold = n
	}
}

// WithCooldown sets how long the circuit stays open before turning half-open.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		b.cooldown = d
	}
}

// New creates a closed breaker named for its dependency.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 2,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, moving an open circuit to half-open once
// its cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// IsOpen reports whether calls should currently be skipped. A half-open
// circuit lets calls through so successes can close it again.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// refreshLocked applies the open-to-half-open transition. Callers must hold mu.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && !b.now().Before(b.openUntil) {
		b.state = StateHalfOpen
		b.successes = 0
	}
}

// RecordFailure notes a failed call. It returns whether the caller should
// use its fallback from now on, and whether this failure opened the circuit.
// A failure while half-open re-opens the circuit for a fresh cooldown.
func (b *Breaker) RecordFailure() (useFallback bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	b.successes = 0
	switch b.state {
	case StateOpen:
		return true, StateChange{}
	case StateHalfOpen:
		b.state = StateOpen
		b.openUntil = b.now().Add(b.cooldown)
		b.failures = 0
		return true, StateChange{Opened: true}
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.openUntil = b.now().Add(b.cooldown)
		b.failures = 0
		return true, StateChange{Opened: true}
	}
	return false, StateChange{}
}

// RecordSuccess notes a successful call. It returns whether the caller can
// use the primary path, and whether this success closed the circuit.
func (b *Breaker) RecordSuccess() (usePrimary bool, change StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	b.failures = 0
	if b.state == StateClosed {
		return true, StateChange{}
	}

	b.successes++
	if b.successes >= b.successThreshold {
		b.state = StateClosed
		b.successes = 0
		b.openUntil = time.Time{}
		return true, StateChange{Closed: true}
	}
	return false, StateChange{}
}

// Reset forces the breaker closed and clears all counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.openUntil = time.Time{}
}
