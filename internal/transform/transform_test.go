package transform

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/domain"
)

func enriched(id, text string) domain.EnrichedItem {
	return domain.EnrichedItem{
		Item: domain.DiscoveredItem{
			ExternalID:  id,
			Source:      domain.SourceSocial,
			URL:         "https://social.example/p/" + id,
			PublishedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			Query:       "#fintech",
			Competitor:  "Acme Bank",
			Tier:        1,
			Tags:        []string{"#FinTech", "fin-tech", "Rates!"},
		},
		FullText:   text,
		Engagement: domain.Engagement{Likes: 100, Shares: 20, Comments: 5},
		Author:     domain.Author{Handle: "acme", Followers: 5000},
		Extra:      map[string]string{"lang": "en"},
	}
}

// TestRecordIDDeterministic verifies that the same input always produces the same UUID
func TestRecordIDDeterministic(t *testing.T) {
	testCases := []struct {
		name       string
		source     string
		externalID string
	}{
		{name: "social post", source: "social", externalID: "p-123"},
		{name: "feed item", source: "feed", externalID: "https://news.example/a/1"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id1 := RecordID(tc.source, tc.externalID)
			id2 := RecordID(tc.source, tc.externalID)

			if id1 != id2 {
				t.Errorf("ID mismatch: first=%s, second=%s", id1, id2)
			}
			if len(id1) != 36 {
				t.Errorf("Invalid UUID length: got %d, want 36", len(id1))
			}
		})
	}

	if RecordID("social", "1") == RecordID("feed", "1") {
		t.Error("IDs must differ across sources")
	}
}

func TestTransformMapsFields(t *testing.T) {
	cls := domain.Classifications{}
	cls.Add("1", domain.ClassificationResult{
		Stage: "theme", Category: "competitor", Confidence: 0.7, Topics: []string{"Savings Accounts"},
		RequiresReview: true, Summary: "competitor launches product",
	})
	cls.Add("1", domain.ClassificationResult{
		Stage: "claims", Category: "regulatory", Confidence: 0.9, Severity: domain.SeverityHigh,
		MatchedPatterns: []string{"guaranteed returns"}, RequiresReview: false,
	})

	tr := New(Options{}, nil)
	recs, failed := tr.Transform(context.Background(), []domain.EnrichedItem{enriched("1", "Acme launches savings\nmore text")}, cls)
	require.Len(t, recs, 1)
	assert.Zero(t, failed)

	r := recs[0]
	assert.Equal(t, RecordID(domain.SourceSocial, "1"), r.ID)
	assert.Equal(t, "Acme launches savings", r.Title)
	assert.Contains(t, r.Content, "[theme] competitor launches product")
	assert.Equal(t, []string{"fintech", "rates", "acmebank", "savingsaccounts"}, r.Tags)
	assert.Equal(t, 0.0, r.Score)
	assert.Equal(t, domain.ComplianceUnset, r.ComplianceStatus)

	assert.Equal(t, "competitor", r.Metadata[MetaCategory])
	assert.Equal(t, "high", r.Metadata[MetaSeverity])
	assert.Equal(t, []string{"guaranteed returns"}, r.Metadata[MetaMatched])
	assert.Equal(t, int64(125), r.Metadata[MetaEngagement])
	assert.Equal(t, "en", r.Metadata["source.lang"])
	assert.Equal(t, map[string]bool{"theme": true, "claims": false}, ReviewFlags(r))
}

func TestTransformTruncatesTitle(t *testing.T) {
	long := strings.Repeat("a", 600)
	recs, _ := New(Options{}, nil).Transform(context.Background(), []domain.EnrichedItem{enriched("1", long)}, nil)
	require.Len(t, recs, 1)

	title := []rune(recs[0].Title)
	assert.Len(t, title, domain.MaxTitleLength)
	assert.Equal(t, '…', title[len(title)-1])
}

func TestTransformFallbackTitle(t *testing.T) {
	item := enriched("1", "")
	item.Item.Text = ""

	recs, _ := New(Options{}, nil).Transform(context.Background(), []domain.EnrichedItem{item}, nil)
	require.Len(t, recs, 1)
	assert.Equal(t, "social post by acme", recs[0].Title)
}

func TestTransformIsolatesFailures(t *testing.T) {
	bad := enriched("2", "text")
	bad.Item.URL = "https://x.example/" + strings.Repeat("p/", 1100)
	noID := enriched("", "text")

	items := []domain.EnrichedItem{enriched("1", "a"), bad, enriched("3", "c"), noID}
	recs, failed := New(Options{}, nil).Transform(context.Background(), items, nil)

	assert.Len(t, recs, 2)
	assert.Equal(t, 2, failed)
}

func TestTransformStripsQueryFromLongURL(t *testing.T) {
	item := enriched("1", "text")
	item.Item.URL = "https://x.example/a?utm=" + strings.Repeat("z", 3000)

	recs, failed := New(Options{}, nil).Transform(context.Background(), []domain.EnrichedItem{item}, nil)
	require.Len(t, recs, 1)
	assert.Zero(t, failed)
	assert.Equal(t, "https://x.example/a", recs[0].URL)
}

func TestSanitizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		max  int
		want []string
	}{
		{"dedupe after cleaning", []string{"#AI", "ai", "A.I."}, 10, []string{"ai"}},
		{"drops empty", []string{"!!!", "", "ok"}, 10, []string{"ok"}},
		{"caps count", []string{"a", "b", "c"}, 2, []string{"a", "b"}},
		{"bounds length", []string{strings.Repeat("x", 40)}, 10, []string{strings.Repeat("x", 32)}},
		{"keeps unicode letters", []string{"Überweisung"}, 10, []string{"überweisung"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTags(tt.in, tt.max, 32))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab…", Truncate("ab cdefgh", 4))
}
