package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/harvester/internal/logger"
)

// TokenBucket limits calls per minute using a Counter shared across processes.
// When the shared counter fails, that single call is counted locally instead.
type TokenBucket struct {
	source    string
	perMinute int64
	shared    Counter
	local     *LocalCounter
	backoff   *Backoff
	clock     Clock
	logger    *logger.Logger
}

// TokenBucketConfig holds parameters for a TokenBucket.
type TokenBucketConfig struct {
	Source            string
	RequestsPerMinute int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
}

// NewTokenBucket creates a per-minute governor. shared may be nil for local-only counting.
func NewTokenBucket(cfg TokenBucketConfig, shared Counter, clock Clock, log *logger.Logger) *TokenBucket {
	if clock == nil {
		clock = SystemClock
	}
	return &TokenBucket{
		source:    cfg.Source,
		perMinute: int64(cfg.RequestsPerMinute),
		shared:    shared,
		local:     NewLocalCounter(clock),
		backoff:   NewBackoff(cfg.BaseBackoff, cfg.MaxBackoff, clock),
		clock:     clock,
		logger:    logger.OrDefault(log).WithField(logger.FieldComponent, "ratelimit"),
	}
}

// windowTTL keeps a minute key alive for twice the window to survive clock skew.
const windowTTL = 2 * time.Minute

func (b *TokenBucket) key(t time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s", b.source, t.UTC().Truncate(time.Minute).Format("200601021504"))
}

// Acquire implements Governor.
func (b *TokenBucket) Acquire(ctx context.Context, timeout time.Duration) bool {
	deadline := b.clock.Now().Add(timeout)
	for {
		if !waitOut(ctx, b.clock, b.backoff, deadline) {
			return false
		}
		if ctx.Err() != nil {
			return false
		}
		if b.perMinute <= 0 {
			return true
		}

		now := b.clock.Now()
		if b.incr(ctx, b.key(now)) <= b.perMinute {
			return true
		}

		wait := now.Truncate(time.Minute).Add(time.Minute).Sub(now)
		if now.Add(wait).After(deadline) {
			return false
		}
		if err := b.clock.Sleep(ctx, wait); err != nil {
			return false
		}
	}
}

func (b *TokenBucket) incr(ctx context.Context, key string) int64 {
	if b.shared != nil {
		n, err := b.shared.Incr(ctx, key, windowTTL)
		if err == nil {
			return n
		}
		b.logger.WithError(err).WithField("key", key).Warn("Shared rate counter unavailable, counting locally")
	}
	n, _ := b.local.Incr(ctx, key, windowTTL)
	return n
}

// RecordRateLimit implements Governor.
func (b *TokenBucket) RecordRateLimit(hint time.Duration) {
	window := b.backoff.Record(hint)
	b.logger.WithFields(logger.Fields{
		logger.FieldSource: b.source,
		"backoff_ms":       window.Milliseconds(),
		"hits":             b.backoff.Hits(),
	}).Warn("Rate limit recorded")
}

// RecordSuccess implements Governor.
func (b *TokenBucket) RecordSuccess() {
	b.backoff.Reset()
}

// RetryAfter implements Governor.
func (b *TokenBucket) RetryAfter() time.Duration {
	return b.backoff.Remaining()
}
