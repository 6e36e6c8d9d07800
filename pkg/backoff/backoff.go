package backoff

import (
	"math/rand"
	"time"
)

// Backoff implements a simple exponential backoff strategy that caps the
// calculated delay at a configured maximum. It is intentionally free of
// external dependencies so it can be reused across packages.
type Backoff struct {
	base    time.Duration // starting delay
	max     time.Duration // maximum delay cap
	jitter  bool          // randomize delays to avoid reconnect stampedes
	attempt int           // current attempt counter
}

// New creates a new backoff helper with base and max durations.
func New(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base: base,
		max:  max,
	}
}

// NewWithJitter creates a backoff helper whose delays are randomized within
// [delay/2, delay]. Useful when several links may reconnect at once.
func NewWithJitter(base, max time.Duration) *Backoff {
	b := New(base, max)
	b.jitter = true
	return b
}

// Next returns the delay for the current attempt and increments the internal
// counter so that each subsequent call produces an exponentially longer delay
// until the configured maximum is reached.
func (b *Backoff) Next() time.Duration {
	delay := b.base << uint(b.attempt)
	if delay > b.max {
		delay = b.max
	} else {
		b.attempt++
	}
	if b.jitter && delay > 0 {
		half := delay / 2
		delay = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return delay
}

// Reset sets the attempt counter back to zero so that the next call to Next
// returns the base delay again. This should be called after a successful
// connection to restart the back-off sequence.
func (b *Backoff) Reset() {
	b.attempt = 0
}
