// Package watch provides a single-writer, multi-reader latest-value cell.
//
// Unlike a queue, a Value holds only the most recently published value.
// Receivers that fall behind skip straight to the newest value instead of
// replaying history. This is the primitive behind connection-reference and
// configuration publication: observers always act on a fresh snapshot and a
// missed intermediate value is by definition one they did not need.
package watch

import (
	"context"
	"sync"
)

// Value is a latest-value broadcast cell. The zero value is not usable;
// create one with NewValue. Set is intended for a single writer, Load and
// Subscribe are safe from any goroutine.
type Value[T any] struct {
	mu      sync.Mutex
	val     T
	version uint64
	changed chan struct{}
}

// NewValue creates a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		val:     initial,
		version: 1,
		changed: make(chan struct{}),
	}
}

// Set replaces the current value and wakes all blocked receivers.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	v.val = val
	v.version++
	close(v.changed)
	v.changed = make(chan struct{})
	v.mu.Unlock()
}

// Load returns a snapshot of the current value.
func (v *Value[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.val
}

// Subscribe returns a new independent receiver. The receiver considers the
// current value already observed; Changed fires only for later Sets.
func (v *Value[T]) Subscribe() *Receiver[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &Receiver[T]{src: v, seen: v.version}
}

// Receiver observes a Value. Each receiver tracks which version it has seen
// independently; receivers never affect each other or the writer.
type Receiver[T any] struct {
	src  *Value[T]
	seen uint64
}

// Load returns a snapshot of the current value without marking it observed.
func (r *Receiver[T]) Load() T {
	return r.src.Load()
}

// Changed blocks until the cell holds a value newer than the last one this
// receiver observed, then returns it. Intermediate values are skipped; only
// the newest value is returned.
func (r *Receiver[T]) Changed(ctx context.Context) (T, error) {
	for {
		r.src.mu.Lock()
		if r.src.version > r.seen {
			r.seen = r.src.version
			val := r.src.val
			r.src.mu.Unlock()
			return val, nil
		}
		ch := r.src.changed
		r.src.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Changes returns a channel that carries the latest value after each change.
// Values are coalesced: if the consumer is slow, stale pending values are
// replaced with newer ones. The channel is closed when ctx is cancelled.
func (r *Receiver[T]) Changes(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	go func() {
		defer close(ch)
		for {
			v, err := r.Changed(ctx)
			if err != nil {
				return
			}
			// Replace an unconsumed value; only this goroutine sends,
			// so the channel has space after the drain.
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}()
	return ch
}

// Wait blocks until the current or a future value satisfies pred.
func (r *Receiver[T]) Wait(ctx context.Context, pred func(T) bool) (T, error) {
	if v := r.Load(); pred(v) {
		return v, nil
	}
	for {
		v, err := r.Changed(ctx)
		if err != nil {
			return v, err
		}
		if pred(v) {
			return v, nil
		}
	}
}

// Clone returns an independent receiver starting from the same observed
// version.
func (r *Receiver[T]) Clone() *Receiver[T] {
	return &Receiver[T]{src: r.src, seen: r.seen}
}
