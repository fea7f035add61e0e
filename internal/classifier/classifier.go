// Package classifier implements the enrichment stages that label each
// harvested item with a category and a risk severity.
//
// A stage is either rule based (PatternClassifier) or backed by a
// generative model (ModelClassifier). Both degrade to a fixed
// low-confidence default instead of failing.
package classifier

import (
	"context"

	"github.com/timmy/harvester/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Stage names.
const (
	StagePattern = "pattern"
	StageTheme   = "theme"
	StageClaims  = "claims"
)

const (
	// DefaultCategory is the category of the low-confidence default.
	DefaultCategory = "general"
	// DefaultConfidence is the confidence of the low-confidence default.
	DefaultConfidence = 0.1
)

// Context carries item discriminators a stage may use.
type Context struct {
	ItemID     string
	Source     string
	Competitor string
	Tier       int
	Tags       []string
}

// Classifier is one classifier stage.
type Classifier interface {
	// Name returns the stage name recorded on each result.
	Name() string
	// Classify labels one text. It never fails: errors become Default(Name()).
	Classify(ctx context.Context, text string, c Context) domain.ClassificationResult
}

// Default returns the fixed low-confidence result for a stage.
func Default(stage string) domain.ClassificationResult {
	return domain.ClassificationResult{
		Stage:      stage,
		Category:   DefaultCategory,
		Confidence: DefaultConfidence,
		Severity:   domain.SeverityNone,
		Fallback:   true,
	}
}

// ContextFor builds the classifier context of an enriched item.
func ContextFor(item domain.EnrichedItem) Context {
	return Context{
		ItemID:     item.ID(),
		Source:     item.Item.Source,
		Competitor: item.Item.Competitor,
		Tier:       item.Item.Tier,
		Tags:       item.Item.Tags,
	}
}

// ClassifyBatch runs one stage over items with bounded concurrency and
// returns the results keyed by item ID.
func ClassifyBatch(ctx context.Context, c Classifier, items []domain.EnrichedItem, concurrency int) map[string]domain.ClassificationResult {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]domain.ClassificationResult, len(items))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range items {
		g.Go(func() error {
			results[i] = classifySafe(ctx, c, items[i])
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]domain.ClassificationResult, len(items))
	for i, item := range items {
		out[item.ID()] = results[i]
	}
	return out
}

func classifySafe(ctx context.Context, c Classifier, item domain.EnrichedItem) (res domain.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = Default(c.Name())
		}
	}()
	return c.Classify(ctx, item.PrimaryText(), ContextFor(item))
}
