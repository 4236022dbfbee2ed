package supervisor

import (
	"math/rand"
	"time"
)

// backoff implements capped exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, current: initial}
}

// Next returns the delay to wait before the next restart, including ±20%
// jitter, and doubles the base for the time after.
func (b *backoff) Next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset drops the delay back to its floor.
func (b *backoff) Reset() {
	b.current = b.initial
}

// Current returns the next undithered base delay.
func (b *backoff) Current() time.Duration {
	return b.current
}
