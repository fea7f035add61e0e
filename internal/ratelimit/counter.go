package ratelimit

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter increments a windowed key and returns its new value.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// LocalCounter is an instance-scoped Counter with per-key expiry.
type LocalCounter struct {
	mu      sync.Mutex
	clock   Clock
	entries map[string]localEntry
}

type localEntry struct {
	count     int64
	expiresAt time.Time
}

// NewLocalCounter creates an in-memory Counter.
func NewLocalCounter(clock Clock) *LocalCounter {
	if clock == nil {
		clock = SystemClock
	}
	return &LocalCounter{clock: clock, entries: make(map[string]localEntry)}
}

// Incr implements Counter. It never fails.
func (c *LocalCounter) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	e, ok := c.entries[key]
	if !ok {
		e.expiresAt = now.Add(ttl)
	}
	e.count++
	c.entries[key] = e
	return e.count, nil
}

// RedisOptions are the Redis connection options for the shared counter.
type RedisOptions struct {
	// Redis server address.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// TLS config.
	TLSConfig *tls.Config
	// DialTimeout bounds connecting; a short value keeps fallback fast.
	DialTimeout time.Duration
}

// RedisCounter is a Counter shared across processes through Redis.
type RedisCounter struct {
	client redis.UniversalClient
}

// NewRedisCounter opens a Redis client for the shared counter.
func NewRedisCounter(options RedisOptions) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		TLSConfig:   options.TLSConfig,
		Addr:        options.Address,
		Password:    options.Password,
		DB:          options.DB,
		DialTimeout: options.DialTimeout,
		MaxRetries:  -1,
	})
	return &RedisCounter{client: client}
}

// Incr implements Counter with INCR and EXPIRE in one transaction.
func (c *RedisCounter) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Ping checks connectivity.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *RedisCounter) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
