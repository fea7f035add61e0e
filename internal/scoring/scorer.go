// Package scoring sets the relevance score of canonical records.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/transform"
)

// RelevanceScorer is the shared relevance-scoring collaborator.
// It returns a base score per record ID.
type RelevanceScorer interface {
	ScoreBatch(ctx context.Context, records []domain.CanonicalRecord) (map[string]float64, error)
}

// EngagementTier awards Boost when engagement reaches Min.
type EngagementTier struct {
	Min   int64
	Boost float64
}

// Boosts configures the pipeline-local score adjustments.
type Boosts struct {
	// Engagement tiers, highest first; the first reached tier applies.
	Engagement     []EngagementTier
	TierOne        float64
	RegulatoryHigh float64
	Recent         float64
	RecencyWindow  time.Duration
	FallbackBase   float64 // base score when the collaborator has none
}

// DefaultBoosts returns the standard boosts.
func DefaultBoosts() Boosts {
	return Boosts{
		Engagement: []EngagementTier{
			{Min: 10000, Boost: 2.0},
			{Min: 1000, Boost: 1.5},
			{Min: 100, Boost: 1.0},
			{Min: 10, Boost: 0.5},
		},
		TierOne:        0.5,
		RegulatoryHigh: 2.0,
		Recent:         0.5,
		RecencyWindow:  24 * time.Hour,
		FallbackBase:   0,
	}
}

// Scorer is the pipeline-local adapter over a RelevanceScorer.
type Scorer struct {
	relevance RelevanceScorer
	boosts    Boosts
	logger    *logger.Logger
	now       func() time.Time
}

// NewScorer creates a Scorer.
func NewScorer(relevance RelevanceScorer, boosts Boosts, log *logger.Logger) *Scorer {
	return &Scorer{relevance: relevance, boosts: boosts, logger: log, now: time.Now}
}

// WithClock overrides the clock used for the recency boost.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

func (s *Scorer) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Score sets every record's score to the collaborator's base plus local
// boosts, clamped to [0,10]. A record whose boosts cannot be computed keeps
// its base score. Record count never changes.
func (s *Scorer) Score(ctx context.Context, records []domain.CanonicalRecord) []domain.CanonicalRecord {
	base, err := s.relevance.ScoreBatch(ctx, records)
	if err != nil {
		s.log(ctx).WithError(err).WithField(logger.FieldCount, len(records)).
			Error("Relevance scoring failed, using fallback base score")
		base = nil
	}

	out := make([]domain.CanonicalRecord, len(records))
	for i, r := range records {
		b, ok := base[r.ID]
		if !ok {
			b = s.boosts.FallbackBase
			r = r.WithMetadata(transform.MetaRelevanceFallback, true)
		}

		boost, err := s.boost(r)
		if err != nil {
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID: r.ExternalID,
			}).WithError(err).Warn("Score boost failed, keeping base score")
			boost = 0
		}
		out[i] = r.WithScore(b + boost)
	}
	return out
}

func (s *Scorer) boost(r domain.CanonicalRecord) (total float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic computing boost: %v", rec)
		}
	}()

	engagement, err := metaInt(r, transform.MetaEngagement)
	if err != nil {
		return 0, err
	}
	for _, tier := range s.boosts.Engagement {
		if engagement >= tier.Min {
			total += tier.Boost
			break
		}
	}

	tier, err := metaInt(r, transform.MetaTier)
	if err != nil {
		return 0, err
	}
	if tier == 1 {
		total += s.boosts.TierOne
	}

	if r.MetaString(transform.MetaCategory) == domain.CategoryRegulatory &&
		r.MetaString(transform.MetaSeverity) == string(domain.SeverityHigh) {
		total += s.boosts.RegulatoryHigh
	}

	if !r.PublishedAt.IsZero() && s.boosts.RecencyWindow > 0 &&
		s.now().Sub(r.PublishedAt) < s.boosts.RecencyWindow {
		total += s.boosts.Recent
	}
	return total, nil
}

// metaInt reads an optional numeric metadata value; a non-numeric value is an error.
func metaInt(r domain.CanonicalRecord, key string) (int64, error) {
	v, ok := r.Metadata[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("metadata %s: expected number, got %T", key, v)
	}
}
