package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 15, 30, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type failingCounter struct{ calls int }

func (f *failingCounter) Incr(context.Context, string, time.Duration) (int64, error) {
	f.calls++
	return 0, errors.New("connection refused")
}

func TestBackoffGrowsUntilMax(t *testing.T) {
	clock := newFakeClock()
	b := NewBackoff(time.Second, 10*time.Second, clock)

	var windows []time.Duration
	for i := 0; i < 6; i++ {
		windows = append(windows, b.Record(0))
	}

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, windows)
	for i := 1; i < 4; i++ {
		assert.Greater(t, windows[i], windows[i-1])
	}

	b.Reset()
	assert.Equal(t, 0, b.Hits())
	assert.Equal(t, time.Second, b.Record(0))
}

func TestBackoffHonoursServerHint(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, newFakeClock())

	assert.Equal(t, 30*time.Second, b.Record(30*time.Second))
	assert.Equal(t, time.Minute, b.Record(5*time.Minute))
}

func TestTokenBucketDeniesWhenBackoffExceedsTimeout(t *testing.T) {
	clock := newFakeClock()
	bucket := NewTokenBucket(TokenBucketConfig{
		Source: "social", RequestsPerMinute: 10, BaseBackoff: 5 * time.Second, MaxBackoff: time.Minute,
	}, nil, clock, nil)

	bucket.RecordRateLimit(0)
	start := clock.Now()

	assert.False(t, bucket.Acquire(context.Background(), 2*time.Second))
	assert.Equal(t, start, clock.Now(), "denial must not sleep")

	assert.True(t, bucket.Acquire(context.Background(), 10*time.Second))
	assert.Equal(t, 5*time.Second, clock.Now().Sub(start))
}

func TestTokenBucketWaitsForNextMinute(t *testing.T) {
	clock := newFakeClock()
	bucket := NewTokenBucket(TokenBucketConfig{
		Source: "social", RequestsPerMinute: 2, BaseBackoff: time.Second, MaxBackoff: time.Minute,
	}, nil, clock, nil)
	ctx := context.Background()

	require.True(t, bucket.Acquire(ctx, time.Second))
	require.True(t, bucket.Acquire(ctx, time.Second))
	assert.False(t, bucket.Acquire(ctx, time.Second))

	assert.True(t, bucket.Acquire(ctx, time.Minute))
	assert.Equal(t, 0, clock.Now().Second())
}

func TestTokenBucketFallsBackPerCall(t *testing.T) {
	clock := newFakeClock()
	shared := &failingCounter{}
	bucket := NewTokenBucket(TokenBucketConfig{
		Source: "social", RequestsPerMinute: 5, BaseBackoff: time.Second, MaxBackoff: time.Minute,
	}, shared, clock, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, bucket.Acquire(context.Background(), time.Second))
	}
	assert.Equal(t, 3, shared.calls, "shared counter is retried on every call")
}

func TestTokenBucketFallsBackWhenRedisUnreachable(t *testing.T) {
	counter := NewRedisCounter(RedisOptions{Address: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer counter.Close()

	bucket := NewTokenBucket(TokenBucketConfig{
		Source: "feed", RequestsPerMinute: 1, BaseBackoff: time.Second, MaxBackoff: time.Minute,
	}, counter, newFakeClock(), nil)

	assert.True(t, bucket.Acquire(context.Background(), time.Second))
	assert.False(t, bucket.Acquire(context.Background(), time.Second))
}

func TestTokenBucketRespectsCancelledContext(t *testing.T) {
	bucket := NewTokenBucket(TokenBucketConfig{Source: "social", RequestsPerMinute: 5}, nil, newFakeClock(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, bucket.Acquire(ctx, time.Minute))
}

func TestHourlyQuotaRollover(t *testing.T) {
	clock := newFakeClock()
	quota := NewHourlyQuota(2, nil, clock)
	ctx := context.Background()

	assert.True(t, quota.Acquire(ctx, time.Second))
	assert.True(t, quota.Acquire(ctx, time.Second))
	assert.False(t, quota.Acquire(ctx, time.Hour), "exhausted quota is not waited out")
	assert.Equal(t, 44*time.Minute+30*time.Second, quota.RetryAfter())

	clock.Advance(45 * time.Minute)
	assert.True(t, quota.Acquire(ctx, time.Second))
	assert.Equal(t, 1, quota.Used())
}

func TestHourlyQuotaRelease(t *testing.T) {
	quota := NewHourlyQuota(1, nil, newFakeClock())
	ctx := context.Background()

	require.True(t, quota.Acquire(ctx, time.Second))
	quota.Release()
	assert.Equal(t, 0, quota.Used())
	assert.True(t, quota.Acquire(ctx, time.Second), "released unit can be granted again")

	quota.Release()
	quota.Release()
	assert.Equal(t, 0, quota.Used(), "never goes below zero")
}

func TestHourlyQuotaSuccessResetsHits(t *testing.T) {
	clock := newFakeClock()
	backoff := NewBackoff(time.Second, time.Minute, clock)
	quota := NewHourlyQuota(100, backoff, clock)

	quota.RecordRateLimit(0)
	quota.RecordRateLimit(0)
	assert.Equal(t, 2, backoff.Hits())

	quota.RecordSuccess()
	assert.Equal(t, 0, backoff.Hits())
}

func TestLocalCounterExpires(t *testing.T) {
	clock := newFakeClock()
	c := NewLocalCounter(clock)
	ctx := context.Background()

	n, _ := c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
	n, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(2), n)

	clock.Advance(time.Minute)
	n, _ = c.Incr(ctx, "k", time.Minute)
	assert.Equal(t, int64(1), n)
}
