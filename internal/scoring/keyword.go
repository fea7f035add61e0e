package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/transform"
)

// KeywordScorer is the default relevance collaborator. A record's base
// score combines weighted keyword hits (at most 6), classification
// confidence (at most 2) and author reach (at most 1).
type KeywordScorer struct {
	weights map[string]float64
	logger  *logger.Logger
}

// NewKeywordScorer creates a KeywordScorer over lowercase keyword weights.
func NewKeywordScorer(weights map[string]float64, log *logger.Logger) *KeywordScorer {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[strings.ToLower(k)] = v
	}
	return &KeywordScorer{weights: w, logger: log}
}

// ScoreBatch implements RelevanceScorer.
func (k *KeywordScorer) ScoreBatch(ctx context.Context, records []domain.CanonicalRecord) (map[string]float64, error) {
	out := make(map[string]float64, len(records))
	scores := make(stats.Float64Data, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := k.score(r)
		out[r.ID] = s
		scores = append(scores, s)
	}

	if len(scores) > 0 {
		mean, _ := stats.Mean(scores)
		median, _ := stats.Median(scores)
		p90, _ := stats.Percentile(scores, 90)
		logger.FromContextOr(ctx, k.logger).WithFields(logger.Fields{
			logger.FieldCount: len(scores),
			"mean":            round2(mean),
			"median":          round2(median),
			"p90":             round2(p90),
		}).Debug("Base relevance scores computed")
	}
	return out, nil
}

func (k *KeywordScorer) score(r domain.CanonicalRecord) float64 {
	text := strings.ToLower(r.Title + " " + r.Content + " " + strings.Join(r.Tags, " "))

	var hits stats.Float64Data
	for kw, w := range k.weights {
		if strings.Contains(text, kw) {
			hits = append(hits, w)
		}
	}
	keyword, _ := stats.Sum(hits)
	keyword = math.Min(keyword, 6)

	confidence := 0.0
	if c, ok := r.Metadata[transform.MetaConfidence].(float64); ok {
		confidence = math.Max(0, math.Min(c, 1)) * 2
	}

	reach := 0.0
	if f := r.MetaInt(transform.MetaAuthorFollowers); f > 0 {
		reach = math.Min(math.Log10(float64(f))/6, 1)
	}

	return keyword + confidence + reach
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
