// Package broadcast provides a multi-consumer broadcast ring with a bounded
// history window.
//
// One publisher fans values out to any number of receivers. Each receiver
// holds its own cursor into the ring, so a slow receiver never blocks the
// publisher or other receivers. When a receiver falls further behind than
// the ring's capacity, the overrun policy is per receiver: strict receivers
// get ErrLagged once and are resynchronized to the oldest retained value,
// lossy receivers skip ahead silently and just observe a gap.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrClosed is returned by Recv after the ring has been closed and all
	// retained values have been drained.
	ErrClosed = errors.New("broadcast: ring closed")

	// ErrLagged is returned by Recv on a strict receiver that has been
	// overrun. The receiver is resynchronized; the next Recv resumes from
	// the oldest retained value.
	ErrLagged = errors.New("broadcast: receiver lagged")
)

// LagError reports how far behind an overrun strict receiver fell. It
// matches ErrLagged under errors.Is.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("%v: missed %d values", ErrLagged, e.Missed)
}

func (e *LagError) Unwrap() error { return ErrLagged }

// Ring is a bounded broadcast channel. Publish never blocks; old values are
// overwritten once the ring is full.
type Ring[T any] struct {
	mu      sync.Mutex
	buf     []T
	size    uint64
	head    uint64 // sequence number of the next published value
	closed  bool
	changed chan struct{}
}

// New creates a ring retaining up to capacity values.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		buf:     make([]T, capacity),
		size:    uint64(capacity),
		changed: make(chan struct{}),
	}
}

// Publish appends v, overwriting the oldest retained value when full.
// Returns ErrClosed if the ring has been closed.
func (r *Ring[T]) Publish(v T) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.buf[r.head%r.size] = v
	r.head++
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()
	return nil
}

// Close stops the ring. Receivers drain whatever is still retained, then
// get ErrClosed. Close is idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.changed)
	}
	r.mu.Unlock()
}

// Subscribe returns a receiver that observes values published after this
// call. strict selects the overrun policy.
func (r *Ring[T]) Subscribe(strict bool) *Receiver[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Receiver[T]{ring: r, next: r.head, strict: strict}
}

// Receiver is one consumer's view of a Ring. Receivers are not safe for
// concurrent use; share the Ring instead and subscribe once per consumer.
type Receiver[T any] struct {
	ring   *Ring[T]
	next   uint64
	strict bool
}

// Recv returns the next value, blocking until one is published, the ring is
// closed, or ctx is done. See the package comment for the overrun policy.
func (rc *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		rc.ring.mu.Lock()

		var oldest uint64
		if rc.ring.head > rc.ring.size {
			oldest = rc.ring.head - rc.ring.size
		}
		if rc.next < oldest {
			missed := oldest - rc.next
			rc.next = oldest
			if rc.strict {
				rc.ring.mu.Unlock()
				return zero, &LagError{Missed: missed}
			}
		}
		if rc.next < rc.ring.head {
			v := rc.ring.buf[rc.next%rc.ring.size]
			rc.next++
			rc.ring.mu.Unlock()
			return v, nil
		}
		if rc.ring.closed {
			rc.ring.mu.Unlock()
			return zero, ErrClosed
		}
		ch := rc.ring.changed
		rc.ring.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Pending reports how many published values this receiver has not yet read.
func (rc *Receiver[T]) Pending() int {
	rc.ring.mu.Lock()
	defer rc.ring.mu.Unlock()
	return int(rc.ring.head - rc.next)
}
