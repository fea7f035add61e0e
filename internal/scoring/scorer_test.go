package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/transform"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedScorer struct {
	scores map[string]float64
	err    error
}

func (f fixedScorer) ScoreBatch(context.Context, []domain.CanonicalRecord) (map[string]float64, error) {
	return f.scores, f.err
}

func record(id string, meta map[string]any, age time.Duration) domain.CanonicalRecord {
	return domain.CanonicalRecord{ID: id, ExternalID: id, Metadata: meta, PublishedAt: now.Add(-age)}
}

func TestScoreBoosts(t *testing.T) {
	tests := []struct {
		name string
		base float64
		meta map[string]any
		age  time.Duration
		want float64
	}{
		{"no boosts", 3, nil, 48 * time.Hour, 3},
		{"engagement 10", 3, map[string]any{transform.MetaEngagement: int64(10)}, 48 * time.Hour, 3.5},
		{"engagement 150", 3, map[string]any{transform.MetaEngagement: int64(150)}, 48 * time.Hour, 4},
		{"engagement 5000", 3, map[string]any{transform.MetaEngagement: int64(5000)}, 48 * time.Hour, 4.5},
		{"engagement 20000", 3, map[string]any{transform.MetaEngagement: int64(20000)}, 48 * time.Hour, 5},
		{"tier one", 3, map[string]any{transform.MetaTier: int64(1)}, 48 * time.Hour, 3.5},
		{"tier two", 3, map[string]any{transform.MetaTier: int64(2)}, 48 * time.Hour, 3},
		{"regulatory high", 3, map[string]any{transform.MetaCategory: "regulatory", transform.MetaSeverity: "high"}, 48 * time.Hour, 5},
		{"regulatory medium", 3, map[string]any{transform.MetaCategory: "regulatory", transform.MetaSeverity: "medium"}, 48 * time.Hour, 3},
		{"recent", 3, nil, time.Hour, 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := record("1", tt.meta, tt.age)
			s := NewScorer(fixedScorer{scores: map[string]float64{"1": tt.base}}, DefaultBoosts(), nil).
				WithClock(func() time.Time { return now })

			out := s.Score(context.Background(), []domain.CanonicalRecord{rec})
			require.Len(t, out, 1)
			assert.InDelta(t, tt.want, out[0].Score, 1e-9)
		})
	}
}

func TestScoreAlwaysWithinBounds(t *testing.T) {
	allBoosts := map[string]any{
		transform.MetaEngagement: int64(1_000_000),
		transform.MetaTier:       int64(1),
		transform.MetaCategory:   "regulatory",
		transform.MetaSeverity:   "high",
	}

	for _, base := range []float64{-50, -1, 0, 4.5, 9.9, 10, 250} {
		for _, meta := range []map[string]any{nil, allBoosts} {
			for _, age := range []time.Duration{time.Minute, 72 * time.Hour} {
				s := NewScorer(fixedScorer{scores: map[string]float64{"1": base}}, DefaultBoosts(), nil).
					WithClock(func() time.Time { return now })
				out := s.Score(context.Background(), []domain.CanonicalRecord{record("1", meta, age)})

				assert.GreaterOrEqual(t, out[0].Score, 0.0)
				assert.LessOrEqual(t, out[0].Score, 10.0)
			}
		}
	}
}

func TestScoreKeepsBaseWhenBoostFails(t *testing.T) {
	bad := record("1", map[string]any{transform.MetaEngagement: "lots", transform.MetaTier: int64(1)}, time.Hour)
	s := NewScorer(fixedScorer{scores: map[string]float64{"1": 4}}, DefaultBoosts(), nil).
		WithClock(func() time.Time { return now })

	out := s.Score(context.Background(), []domain.CanonicalRecord{bad})
	require.Len(t, out, 1)
	assert.Equal(t, 4.0, out[0].Score)
}

func TestScoreFallsBackWhenCollaboratorFails(t *testing.T) {
	boosts := DefaultBoosts()
	boosts.FallbackBase = 2
	s := NewScorer(fixedScorer{err: errors.New("down")}, boosts, nil).WithClock(func() time.Time { return now })

	in := []domain.CanonicalRecord{record("1", nil, 48*time.Hour), record("2", nil, time.Hour)}
	out := s.Score(context.Background(), in)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Score)
	assert.Equal(t, 2.5, out[1].Score)
	assert.Equal(t, true, out[0].Metadata[transform.MetaRelevanceFallback])
	assert.Nil(t, in[0].Metadata, "input records are not mutated")
}

func TestKeywordScorer(t *testing.T) {
	k := NewKeywordScorer(map[string]float64{"Savings": 2, "rate": 1.5, "mortgage": 3}, nil)
	recs := []domain.CanonicalRecord{
		{ID: "a", Title: "New savings rate", Metadata: map[string]any{
			transform.MetaConfidence:      0.5,
			transform.MetaAuthorFollowers: int64(1_000_000),
		}},
		{ID: "b", Title: "Unrelated"},
	}

	scores, err := k.ScoreBatch(context.Background(), recs)
	require.NoError(t, err)
	assert.InDelta(t, 2+1.5+1+1, scores["a"], 1e-9)
	assert.Equal(t, 0.0, scores["b"])
}
