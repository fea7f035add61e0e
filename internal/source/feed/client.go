// Package feed is the source client for RSS and Atom feeds.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/ratelimit"
	"github.com/timmy/harvester/internal/source"
)

// Config holds configuration for the feed client.
type Config struct {
	Timeout        time.Duration
	AcquireTimeout time.Duration
	UserAgent      string
	// FetchFullText fetches the linked article page during Detail.
	FetchFullText bool
}

// Client discovers items from feeds and serves their detail from the parsed
// feed, optionally enriched with the article page text. Parsed entries are
// kept for the current scan pass only.
type Client struct {
	client        *resty.Client
	parser        *gofeed.Parser
	guard         *source.Guard
	fetchFullText bool
	logger        *logger.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	link       string
	title      string
	content    string
	author     string
	feedTitle  string
	categories []string
}

// NewClient creates a feed client.
func NewClient(cfg Config, log *logger.Logger, governors ...ratelimit.Governor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "harvester/1.0"
	}

	client := resty.New()
	client.SetHeader("User-Agent", ua)
	client.SetTimeout(timeout)

	return &Client{
		client:        client,
		parser:        gofeed.NewParser(),
		guard:         source.NewGuard(domain.SourceFeed, cfg.AcquireTimeout, governors...),
		fetchFullText: cfg.FetchFullText,
		logger:        logger.OrDefault(log).WithField(logger.FieldComponent, "feed_client"),
		entries:       make(map[string]entry),
	}
}

// GetSourceID implements source.Client.
func (c *Client) GetSourceID() string {
	return domain.SourceFeed
}

// CallsMade implements source.Client.
func (c *Client) CallsMade() int64 {
	return c.guard.Calls()
}

// BeginScan implements source.ScanScoped: entries from earlier passes are dropped.
func (c *Client) BeginScan() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Discover implements source.Client. query.Value is the feed URL.
func (c *Client) Discover(ctx context.Context, query source.Query, limit int) ([]source.RawHit, error) {
	body, err := c.fetch(ctx, query.Value)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", query.Value, err)
	}

	parsed, err := c.parser.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", query.Value, err)
	}

	hits := make([]source.RawHit, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if limit > 0 && len(hits) >= limit {
			break
		}
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		if id == "" {
			continue
		}

		content := item.Content
		if content == "" {
			content = item.Description
		}
		e := entry{
			link:       item.Link,
			title:      strings.TrimSpace(item.Title),
			content:    StripHTML(content),
			author:     authorName(item),
			feedTitle:  parsed.Title,
			categories: item.Categories,
		}
		c.mu.Lock()
		c.entries[id] = e
		c.mu.Unlock()

		text := e.title
		if summary := StripHTML(item.Description); summary != "" {
			text = strings.TrimSpace(text + "\n" + summary)
		}

		var published time.Time
		switch {
		case item.PublishedParsed != nil:
			published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			published = *item.UpdatedParsed
		}

		hits = append(hits, source.RawHit{
			ID:          id,
			URL:         item.Link,
			Text:        text,
			Author:      e.author,
			Tags:        item.Categories,
			PublishedAt: published,
		})
	}
	return hits, nil
}

// Detail implements source.Client. Feed items carry no engagement counters.
func (c *Client) Detail(ctx context.Context, id string) (*source.RawDetail, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("feed item %s: %w", id, source.ErrNotFound)
	}

	text := e.content
	if c.fetchFullText && e.link != "" {
		page, err := c.fullText(ctx, e.link)
		switch {
		case err != nil:
			if _, limited := source.AsRateLimit(err); limited {
				return nil, err
			}
			c.logger.WithError(err).WithField(logger.FieldItemID, id).Warn("Full-text fetch failed, using feed content")
		case page != "":
			text = page
		}
	}

	return &source.RawDetail{
		ID:     id,
		Title:  e.title,
		Text:   text,
		Author: domain.Author{Handle: e.author, DisplayName: e.author},
		Tags:   append([]string(nil), e.categories...),
		Extra:  map[string]string{"feed_title": e.feedTitle, "link": e.link},
	}, nil
}

func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	if err := c.guard.Before(ctx); err != nil {
		return "", err
	}

	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return "", c.guard.RateLimited(source.ParseRetryAfter(resp.Header().Get("Retry-After"), time.Now()))
	case resp.IsError():
		return "", fmt.Errorf("server returned status %d", resp.StatusCode())
	}

	c.guard.Succeeded()
	return resp.String(), nil
}

// fullText fetches an article page and extracts its paragraph text.
func (c *Client) fullText(ctx context.Context, link string) (string, error) {
	body, err := c.fetch(ctx, link)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	var paragraphs []string
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	return strings.Join(paragraphs, "\n\n"), nil
}

func authorName(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// StripHTML returns the text content of an HTML fragment with whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
