// Package social is the source client for the social platform search API.
package social

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/ratelimit"
	"github.com/timmy/harvester/internal/source"
)

// Config holds configuration for the social platform client.
type Config struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	AcquireTimeout time.Duration
}

// Client talks to the platform's search and post endpoints.
type Client struct {
	client *resty.Client
	guard  *source.Guard
	now    func() time.Time
}

// NewClient creates a social platform client.
// Parameters:
//   - cfg: endpoint and credentials.
//   - governors: rate governors consulted before each call, typically an
//     hourly quota followed by a per-minute token bucket.
//
// Returns:
//   - *Client: initialized client.
func NewClient(cfg Config, governors ...ratelimit.Governor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.Token)
	}
	client.SetTimeout(timeout)

	return &Client{
		client: client,
		guard:  source.NewGuard(domain.SourceSocial, cfg.AcquireTimeout, governors...),
		now:    time.Now,
	}
}

// GetSourceID implements source.Client.
func (c *Client) GetSourceID() string {
	return domain.SourceSocial
}

// CallsMade implements source.Client.
func (c *Client) CallsMade() int64 {
	return c.guard.Calls()
}

type searchResponse struct {
	Data []post `json:"data"`
}

type post struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Text      string   `json:"text"`
	Title     string   `json:"title"`
	CreatedAt string   `json:"created_at"`
	Hashtags  []string `json:"hashtags"`
	Author    author   `json:"author"`
	Metrics   metrics  `json:"metrics"`
	Lang      string   `json:"lang"`
}

type author struct {
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	Followers int64  `json:"followers"`
	Verified  bool   `json:"verified"`
}

type metrics struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Views    int64 `json:"views"`
}

// Discover implements source.Client using the search endpoint.
func (c *Client) Discover(ctx context.Context, query source.Query, limit int) ([]source.RawHit, error) {
	var result searchResponse
	params := map[string]string{
		"q":     query.Value,
		"type":  query.Kind,
		"limit": strconv.Itoa(limit),
	}
	if err := c.get(ctx, "/v1/search", nil, params, &result); err != nil {
		return nil, fmt.Errorf("search %q: %w", query.Value, err)
	}

	hits := make([]source.RawHit, 0, len(result.Data))
	for _, p := range result.Data {
		if p.ID == "" {
			continue
		}
		hits = append(hits, source.RawHit{
			ID:          p.ID,
			URL:         p.URL,
			Text:        p.Text,
			Author:      p.Author.Handle,
			Tags:        p.Hashtags,
			PublishedAt: parseTime(p.CreatedAt),
		})
	}
	return hits, nil
}

// Detail implements source.Client using the post endpoint.
func (c *Client) Detail(ctx context.Context, id string) (*source.RawDetail, error) {
	var p post
	if err := c.get(ctx, "/v1/posts/{id}", map[string]string{"id": id}, nil, &p); err != nil {
		return nil, fmt.Errorf("post %s: %w", id, err)
	}

	extra := map[string]string{}
	if p.Lang != "" {
		extra["lang"] = p.Lang
	}
	return &source.RawDetail{
		ID:    p.ID,
		Title: p.Title,
		Text:  p.Text,
		Engagement: domain.Engagement{
			Likes:    p.Metrics.Likes,
			Shares:   p.Metrics.Shares,
			Comments: p.Metrics.Comments,
			Views:    p.Metrics.Views,
		},
		Author: domain.Author{
			Handle:      p.Author.Handle,
			DisplayName: p.Author.Name,
			Followers:   p.Author.Followers,
			Verified:    p.Author.Verified,
		},
		Tags:  p.Hashtags,
		Extra: extra,
	}, nil
}

// get issues one guarded GET. Path parameters are escaped by resty.
func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string, out interface{}) error {
	if err := c.guard.Before(ctx); err != nil {
		return err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetQueryParams(query).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return c.guard.RateLimited(source.ParseRetryAfter(resp.Header().Get("Retry-After"), c.now()))
	case resp.StatusCode() == http.StatusNotFound:
		return source.ErrNotFound
	case resp.IsError():
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode(), resp.String())
	}

	c.guard.Succeeded()
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
