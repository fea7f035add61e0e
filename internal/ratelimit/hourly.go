package ratelimit

import (
	"context"
	"sync"
	"time"
)

// HourlyQuota enforces a fixed number of calls per clock hour.
// Exhausting the quota is never waited out: Acquire denies immediately.
type HourlyQuota struct {
	mu          sync.Mutex
	limit       int
	count       int
	windowStart time.Time
	backoff     *Backoff
	clock       Clock
}

// NewHourlyQuota creates an hourly quota governor.
func NewHourlyQuota(limit int, backoff *Backoff, clock Clock) *HourlyQuota {
	if clock == nil {
		clock = SystemClock
	}
	if backoff == nil {
		backoff = NewBackoff(time.Second, time.Hour, clock)
	}
	return &HourlyQuota{
		limit:       limit,
		windowStart: clock.Now().Truncate(time.Hour),
		backoff:     backoff,
		clock:       clock,
	}
}

// Acquire implements Governor.
func (q *HourlyQuota) Acquire(ctx context.Context, timeout time.Duration) bool {
	deadline := q.clock.Now().Add(timeout)
	if !waitOut(ctx, q.clock, q.backoff, deadline) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.limit > 0 && q.count >= q.limit {
		return false
	}
	q.count++
	return true
}

// Release implements Releaser: it returns one unit granted in the current hour.
func (q *HourlyQuota) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if q.count > 0 {
		q.count--
	}
}

// rollover resets the counter when the clock has entered a new hour.
// Callers must hold q.mu.
func (q *HourlyQuota) rollover() {
	hour := q.clock.Now().Truncate(time.Hour)
	if hour.After(q.windowStart) {
		q.windowStart = hour
		q.count = 0
	}
}

// RecordRateLimit implements Governor.
func (q *HourlyQuota) RecordRateLimit(hint time.Duration) {
	q.backoff.Record(hint)
}

// RecordSuccess implements Governor.
func (q *HourlyQuota) RecordSuccess() {
	q.backoff.Reset()
}

// RetryAfter implements Governor: the active backoff, or the time until the
// next hour when the quota is exhausted.
func (q *HourlyQuota) RetryAfter() time.Duration {
	if d := q.backoff.Remaining(); d > 0 {
		return d
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	if q.limit > 0 && q.count >= q.limit {
		return q.windowStart.Add(time.Hour).Sub(q.clock.Now())
	}
	return 0
}

// Used returns the calls granted in the current hour.
func (q *HourlyQuota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rollover()
	return q.count
}
