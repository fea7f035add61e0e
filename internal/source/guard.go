package source

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/timmy/harvester/internal/ratelimit"
)

// Guard consults a source's rate governors before each network call and
// feeds provider responses back into them.
type Guard struct {
	source         string
	governors      []ratelimit.Governor
	acquireTimeout time.Duration
	calls          atomic.Int64
}

// NewGuard creates a Guard. acquireTimeout bounds each governor wait.
func NewGuard(source string, acquireTimeout time.Duration, governors ...ratelimit.Governor) *Guard {
	if acquireTimeout <= 0 {
		acquireTimeout = 30 * time.Second
	}
	return &Guard{source: source, governors: governors, acquireTimeout: acquireTimeout}
}

// Before must be called before every network call. When one governor
// denies, grants already taken from the others are released.
func (g *Guard) Before(ctx context.Context) error {
	for i, gov := range g.governors {
		if gov.Acquire(ctx, g.acquireTimeout) {
			continue
		}
		g.release(g.governors[:i])
		if err := ctx.Err(); err != nil {
			return err
		}
		_, quota := gov.(*ratelimit.HourlyQuota)
		return &RateLimitError{Source: g.source, RetryAfter: gov.RetryAfter(), Quota: quota}
	}
	g.calls.Add(1)
	return nil
}

func (g *Guard) release(granted []ratelimit.Governor) {
	for _, gov := range granted {
		if r, ok := gov.(ratelimit.Releaser); ok {
			r.Release()
		}
	}
}

// RateLimited records a provider rate-limit response and returns the error to surface.
func (g *Guard) RateLimited(hint time.Duration) error {
	for _, gov := range g.governors {
		gov.RecordRateLimit(hint)
	}
	return &RateLimitError{Source: g.source, RetryAfter: hint}
}

// Succeeded resets consecutive rate-limit hits.
func (g *Guard) Succeeded() {
	for _, gov := range g.governors {
		gov.RecordSuccess()
	}
}

// Calls returns the number of calls let through.
func (g *Guard) Calls() int64 {
	return g.calls.Load()
}
