package session

import "time"

// backoff produces capped exponential retry delays. Not safe for
// concurrent use; each lifecycle worker owns its own instance.
type backoff struct {
	min  time.Duration
	max  time.Duration
	next time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, next: min}
}

// Next returns the current delay and doubles the next one up to the cap.
func (b *backoff) Next() time.Duration {
	d := b.next
	if n := b.next * 2; n > b.max {
		b.next = b.max
	} else {
		b.next = n
	}
	return d
}

// Reset returns the sequence to the minimum delay. Called after every
// successful connection.
func (b *backoff) Reset() {
	b.next = b.min
}
