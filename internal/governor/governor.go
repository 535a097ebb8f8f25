// Package governor bounds the number of in-flight operations and owns the
// per-operation deadline. Capacity is a buffered-channel semaphore; waiting
// admitters queue on the channel, which under contention hands out slots in
// approximately arrival order.
package governor

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrOverloaded is returned when capacity is exhausted and the caller
	// declined to wait.
	ErrOverloaded = errors.New("admission capacity exhausted")

	// ErrQueueTimeout is returned when a queued caller waited longer than the
	// configured bound.
	ErrQueueTimeout = errors.New("admission queue wait exceeded")
)

// Governor admits operations up to a fixed capacity.
type Governor struct {
	slots     chan struct{}
	queueWait time.Duration
	opTimeout time.Duration
}

// New creates a governor. capacity must be positive. queueWait of zero
// disables queuing: a full governor rejects immediately. opTimeout is the
// default deadline applied around executor calls.
func New(capacity int, queueWait, opTimeout time.Duration) *Governor {
	if capacity < 1 {
		capacity = 1
	}
	return &Governor{
		slots:     make(chan struct{}, capacity),
		queueWait: queueWait,
		opTimeout: opTimeout,
	}
}

// Ticket is one unit of admitted capacity. Release is safe to call multiple
// times but returns capacity exactly once.
type Ticket struct {
	release func()
	once    sync.Once
}

// Release returns the ticket's capacity to the governor.
func (t *Ticket) Release() {
	t.once.Do(t.release)
}

// Admit acquires a capacity slot. With queuing disabled a full governor fails
// with ErrOverloaded; with queuing enabled the wait is bounded by the queue
// wait and by ctx.
func (g *Governor) Admit(ctx context.Context) (*Ticket, error) {
	select {
	case g.slots <- struct{}{}:
		return g.newTicket(), nil
	default:
	}

	if g.queueWait <= 0 {
		return nil, ErrOverloaded
	}

	timer := time.NewTimer(g.queueWait)
	defer timer.Stop()

	select {
	case g.slots <- struct{}{}:
		return g.newTicket(), nil
	case <-timer.C:
		return nil, ErrQueueTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Governor) newTicket() *Ticket {
	return &Ticket{release: func() { <-g.slots }}
}

// OperationContext derives the execution context carrying the per-operation
// deadline. A positive override replaces the configured default.
func (g *Governor) OperationContext(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	timeout := g.opTimeout
	if override > 0 {
		timeout = override
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// InFlight reports the number of currently held tickets.
func (g *Governor) InFlight() int {
	return len(g.slots)
}

// Capacity reports the configured maximum.
func (g *Governor) Capacity() int {
	return cap(g.slots)
}
