package harvester

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/source"
)

type fakeClient struct {
	fail  map[string]bool
	panic map[string]bool
}

func (f *fakeClient) GetSourceID() string { return "social" }
func (f *fakeClient) CallsMade() int64    { return 0 }

func (f *fakeClient) Discover(context.Context, source.Query, int) ([]source.RawHit, error) {
	return nil, nil
}

func (f *fakeClient) Detail(_ context.Context, id string) (*source.RawDetail, error) {
	if f.panic[id] {
		panic("bad payload")
	}
	if f.fail[id] {
		return nil, errors.New("upstream 503")
	}
	return &source.RawDetail{
		ID:         id,
		Text:       "Regulators publish guidance on fintech lending, lending rules tighten",
		Engagement: domain.Engagement{Likes: 5},
		Tags:       []string{"fintech"},
	}, nil
}

func items(ids ...string) []domain.DiscoveredItem {
	out := make([]domain.DiscoveredItem, len(ids))
	for i, id := range ids {
		out[i] = domain.DiscoveredItem{ExternalID: id, Author: "acme", Tags: []string{"#policy"}}
	}
	return out
}

func TestHarvestIsolatesFailures(t *testing.T) {
	tests := []struct {
		name  string
		fail  map[string]bool
		panic map[string]bool
	}{
		{"error", map[string]bool{"3": true}, nil},
		{"panic", nil, map[string]bool{"3": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeClient{fail: tt.fail, panic: tt.panic}, Config{Concurrency: 2}, nil)

			out, failed := h.Harvest(context.Background(), items("1", "2", "3", "4", "5"))
			assert.Len(t, out, 4)
			assert.Equal(t, 1, failed)
			for _, e := range out {
				assert.NotEqual(t, "3", e.ID())
			}
		})
	}
}

func TestHarvestEnrichesItem(t *testing.T) {
	h := New(&fakeClient{}, Config{}, nil)

	out, failed := h.Harvest(context.Background(), items("1"))
	require.Len(t, out, 1)
	assert.Zero(t, failed)

	e := out[0]
	assert.Equal(t, "acme", e.Author.Handle)
	assert.Equal(t, []string{"#policy", "fintech"}, e.Item.Tags)
	assert.Equal(t, int64(5), e.Engagement.Likes)
	assert.Equal(t, []string{"policy", "fintech", "lending"}, e.Keywords[:3])
	assert.False(t, e.FetchedAt.IsZero())
}

func TestHarvestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, failed := New(&fakeClient{}, Config{}, nil).Harvest(ctx, items("1", "2"))
	assert.Empty(t, out)
	assert.Equal(t, 2, failed)
}

func TestExtractKeywordsLimit(t *testing.T) {
	kw := ExtractKeywords("alpha beta gamma delta alpha", nil, 2)
	assert.Equal(t, []string{"alpha", "beta"}, kw)
}
