package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/ratelimit"
)

type denyGovernor struct{ retry time.Duration }

func (d denyGovernor) Acquire(context.Context, time.Duration) bool { return false }
func (d denyGovernor) RecordRateLimit(time.Duration)               {}
func (d denyGovernor) RecordSuccess()                              {}
func (d denyGovernor) RetryAfter() time.Duration                   { return d.retry }

func TestGuardReleasesQuotaWhenLaterGovernorDenies(t *testing.T) {
	quota := ratelimit.NewHourlyQuota(10, nil, nil)
	g := NewGuard("social", time.Second, quota, denyGovernor{retry: time.Minute})

	for i := 0; i < 10; i++ {
		err := g.Before(context.Background())
		rl, ok := AsRateLimit(err)
		require.True(t, ok)
		assert.False(t, rl.Quota)
		assert.Equal(t, time.Minute, rl.RetryAfter)
	}
	assert.Equal(t, 0, quota.Used(), "denied calls must not spend the hourly quota")
	assert.Equal(t, int64(0), g.Calls())

	// The quota is still fully available.
	only := NewGuard("social", time.Second, quota)
	require.NoError(t, only.Before(context.Background()))
	assert.Equal(t, 1, quota.Used())
}

func TestGuardQuotaExhausted(t *testing.T) {
	quota := ratelimit.NewHourlyQuota(1, nil, nil)
	g := NewGuard("social", time.Second, quota)

	require.NoError(t, g.Before(context.Background()))
	err := g.Before(context.Background())
	rl, ok := AsRateLimit(err)
	require.True(t, ok)
	assert.True(t, rl.Quota)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
	assert.Equal(t, int64(1), g.Calls())
}

func TestGuardCancelledContext(t *testing.T) {
	quota := ratelimit.NewHourlyQuota(5, nil, nil)
	g := NewGuard("feed", time.Second, quota)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Before(ctx), context.Canceled)
	assert.Equal(t, 0, quota.Used())
}
