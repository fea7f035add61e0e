package source

import (
	"context"
	"time"

	"github.com/timmy/harvester/internal/domain"
)

// Query kinds.
const (
	QueryHashtag = "hashtag"
	QueryAccount = "account"
	QueryFeed    = "feed"
)

// Query is one discovery query run by the scanner.
type Query struct {
	Value      string // hashtag, account handle, or feed URL
	Kind       string
	Competitor string // competitor the query tracks, if any
	Tier       int    // source tier; 1 is the most authoritative
}

// RawHit is one search or feed hit as returned by a source.
type RawHit struct {
	ID          string
	URL         string
	Text        string
	Author      string
	Tags        []string
	PublishedAt time.Time // zero when the source has no recency field
}

// RawDetail is the detail payload for one item. Media is never included.
type RawDetail struct {
	ID         string
	Title      string
	Text       string
	Engagement domain.Engagement
	Author     domain.Author
	Tags       []string
	Extra      map[string]string
}

// Client is a discovery/detail adapter over one external source.
type Client interface {
	// GetSourceID returns the unique identifier for this source.
	// Returns:
	//   - string: stable source identifier (social, feed).
	GetSourceID() string

	// Discover runs one discovery query.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - query: the discovery query.
	//   - limit: maximum number of hits to return.
	// Returns:
	//   - []RawHit: hits in source order.
	//   - error: *RateLimitError when the provider signals quota exhaustion.
	Discover(ctx context.Context, query Query, limit int) ([]RawHit, error)

	// Detail fetches the full detail of one item.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - id: external ID returned by Discover.
	// Returns:
	//   - *RawDetail: text and numeric metadata for the item.
	//   - error: *RateLimitError when the provider signals quota exhaustion.
	Detail(ctx context.Context, id string) (*RawDetail, error)

	// CallsMade returns the number of network calls issued so far.
	CallsMade() int64
}

// ScanScoped is implemented by clients that keep state between Discover and
// Detail. The scanner calls BeginScan before the first query of a pass, so
// Detail only serves items found by that pass.
type ScanScoped interface {
	BeginScan()
}
