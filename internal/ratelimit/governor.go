// Package ratelimit guards outbound source calls against provider quotas.
//
// Two policies are provided: HourlyQuota, a fixed counter reset on hour
// rollover for hard external quotas, and TokenBucket, a per-minute limit
// backed by a shared Counter with a local fallback. Both apply exponential
// backoff after the provider signals a rate limit.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Governor is consulted by a source client before every network call.
type Governor interface {
	// Acquire waits for permission to make one call.
	// It returns false, never an error, when the wait would exceed timeout
	// or ctx is done first.
	Acquire(ctx context.Context, timeout time.Duration) bool

	// RecordRateLimit registers a rate-limit response. A positive hint is
	// the provider's requested wait and overrides the computed backoff.
	RecordRateLimit(hint time.Duration)

	// RecordSuccess resets the consecutive rate-limit counter.
	RecordSuccess()

	// RetryAfter reports how long until a call could be granted again.
	RetryAfter() time.Duration
}

// Releaser is implemented by governors that can hand back a grant when a
// later governor denies the same call.
type Releaser interface {
	Release()
}

// Clock abstracts time for the governors.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// Backoff tracks consecutive rate-limit hits and the resulting backoff window.
type Backoff struct {
	mu    sync.Mutex
	base  time.Duration
	max   time.Duration
	hits  int
	until time.Time
	clock Clock
}

// NewBackoff creates a Backoff with window min(hint or base*2^(hits-1), max).
func NewBackoff(base, max time.Duration, clock Clock) *Backoff {
	if clock == nil {
		clock = SystemClock
	}
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, clock: clock}
}

// Record registers one rate-limit hit and returns the new backoff window.
func (b *Backoff) Record(hint time.Duration) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hits++
	window := hint
	if window <= 0 {
		window = b.base
		for i := 1; i < b.hits && window < b.max; i++ {
			window *= 2
		}
	}
	if window > b.max {
		window = b.max
	}
	b.until = b.clock.Now().Add(window)
	return window
}

// Reset clears the consecutive hit counter. An active window still runs out.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.hits = 0
	b.mu.Unlock()
}

// Hits returns the consecutive rate-limit hits since the last success.
func (b *Backoff) Hits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits
}

// Remaining returns the time left in the active backoff window.
func (b *Backoff) Remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d := b.until.Sub(b.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// waitOut sleeps through the active backoff window if it ends before deadline.
func waitOut(ctx context.Context, clock Clock, b *Backoff, deadline time.Time) bool {
	wait := b.Remaining()
	if wait <= 0 {
		return true
	}
	if clock.Now().Add(wait).After(deadline) {
		return false
	}
	return clock.Sleep(ctx, wait) == nil
}
