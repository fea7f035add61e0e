package domain

import (
	"strings"
	"time"
)

// DiscoveredItem is a raw search or feed hit found by the scanner.
// Identity is ExternalID; items are never mutated after discovery.
type DiscoveredItem struct {
	ExternalID  string    `json:"external_id"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Text        string    `json:"text"`
	Author      string    `json:"author,omitempty"`
	Tags        []string  `json:"tags,omitempty"`

	// Discriminators: which query found the item and which competitor/tier it belongs to.
	Query      string `json:"query"`
	Competitor string `json:"competitor,omitempty"`
	Tier       int    `json:"tier,omitempty"`
}

// Engagement holds numeric interaction counters reported by the source.
type Engagement struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Views    int64 `json:"views"`
}

// Total returns the interaction volume used for engagement boosts.
// Views are excluded since they are not an interaction.
func (e Engagement) Total() int64 {
	return e.Likes + e.Shares + e.Comments
}

// Author describes the account or publisher behind an item.
type Author struct {
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Followers   int64  `json:"followers,omitempty"`
	Verified    bool   `json:"verified,omitempty"`
}

// EnrichedItem is a DiscoveredItem plus its fetched detail.
// Only text and numeric metadata are carried; binary media never is.
type EnrichedItem struct {
	Item       DiscoveredItem    `json:"item"`
	Title      string            `json:"title,omitempty"`
	FullText   string            `json:"full_text"`
	Engagement Engagement        `json:"engagement"`
	Keywords   []string          `json:"keywords,omitempty"`
	Author     Author            `json:"author"`
	Extra      map[string]string `json:"extra,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

// ID returns the stable external ID of the underlying item.
func (e EnrichedItem) ID() string {
	return e.Item.ExternalID
}

// PrimaryText returns the full text, falling back to the discovery snippet.
func (e EnrichedItem) PrimaryText() string {
	if t := strings.TrimSpace(e.FullText); t != "" {
		return t
	}
	return strings.TrimSpace(e.Item.Text)
}
