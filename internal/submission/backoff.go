package submission

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: exponential growth from a base delay,
// capped, with up to 25% random jitter added on top.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// jitter returns a value in [0, 1). Overridable in tests.
	jitter func() float64
}

// NewBackoff builds a backoff schedule with sane floors on both bounds.
func NewBackoff(base, max time.Duration) Backoff {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return Backoff{Base: base, Max: max, jitter: rand.Float64}
}

// Delay returns the wait before the given retry attempt. Attempt 1 is
// the first retry after the initial failure.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.Max {
			delay = b.Max
			break
		}
	}
	if delay > b.Max {
		delay = b.Max
	}
	jitter := b.jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	return delay + time.Duration(jitter()*0.25*float64(delay))
}
