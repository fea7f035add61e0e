package social

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/ratelimit"
	"github.com/timmy/harvester/internal/source"
)

func TestDiscoverParsesHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/search", r.URL.Path)
		assert.Equal(t, "fintech", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"p1","url":"https://x/p1","text":"hello","created_at":"2026-03-01T10:00:00Z","hashtags":["fintech"],"author":{"handle":"acme"}},
			{"id":"","text":"skipped"},
			{"id":"p2","text":"no date"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	hits, err := c.Discover(context.Background(), source.Query{Value: "fintech", Kind: source.QueryHashtag}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "p1", hits[0].ID)
	assert.Equal(t, "acme", hits[0].Author)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), hits[0].PublishedAt.UTC())
	assert.True(t, hits[1].PublishedAt.IsZero())
	assert.Equal(t, int64(1), c.CallsMade())
}

func TestDetailParsesMetricsWithoutMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/posts/p1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1","text":"full body","lang":"en",
			"metrics":{"likes":10,"shares":2,"comments":3,"views":500},
			"author":{"handle":"acme","name":"Acme","followers":1200,"verified":true},
			"media":[{"type":"image","url":"https://x/img.png"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	d, err := c.Detail(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, "full body", d.Text)
	assert.Equal(t, int64(15), d.Engagement.Total())
	assert.True(t, d.Author.Verified)
	assert.Equal(t, "en", d.Extra["lang"])
}

func TestDetailEscapesPostID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/posts/a%2Fb%20c", r.URL.EscapedPath())
		assert.Empty(t, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"a/b c","text":"body"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	d, err := c.Detail(context.Background(), "a/b c")
	require.NoError(t, err)
	assert.Equal(t, "a/b c", d.ID)
}

func TestTooManyRequestsBecomesRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	bucket := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
		Source: "social", RequestsPerMinute: 100, BaseBackoff: time.Second, MaxBackoff: time.Hour,
	}, nil, nil, nil)
	c := NewClient(Config{BaseURL: srv.URL, AcquireTimeout: time.Millisecond}, bucket)

	_, err := c.Discover(context.Background(), source.Query{Value: "fintech"}, 10)
	rl, ok := source.AsRateLimit(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, 2*time.Minute, rl.RetryAfter)
	assert.Greater(t, bucket.RetryAfter(), time.Minute)

	_, err = c.Discover(context.Background(), source.Query{Value: "fintech"}, 10)
	_, ok = source.AsRateLimit(err)
	assert.True(t, ok, "active backoff denies the next call")
	assert.Equal(t, int64(1), c.CallsMade())
}

func TestServerErrorIsNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Discover(context.Background(), source.Query{Value: "fintech"}, 10)
	require.Error(t, err)
	_, ok := source.AsRateLimit(err)
	assert.False(t, ok)
}

func TestHourlyQuotaDenialIsQuotaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, ratelimit.NewHourlyQuota(1, nil, nil))
	_, err := c.Discover(context.Background(), source.Query{Value: "a"}, 10)
	require.NoError(t, err)

	_, err = c.Discover(context.Background(), source.Query{Value: "b"}, 10)
	rl, ok := source.AsRateLimit(err)
	require.True(t, ok)
	assert.True(t, rl.Quota)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
}
