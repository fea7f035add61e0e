package pipeline

import (
	"context"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/scanner"
)

// Stage collaborators. The concrete types in scanner, harvester, transform,
// compliance, scoring and publish satisfy these.

type Scanner interface {
	Scan(ctx context.Context, cfg scanner.Config) (*scanner.Result, error)
}

type Harvester interface {
	Harvest(ctx context.Context, items []domain.DiscoveredItem) ([]domain.EnrichedItem, int)
}

type Transformer interface {
	Transform(ctx context.Context, items []domain.EnrichedItem, cls domain.Classifications) ([]domain.CanonicalRecord, int)
}

type Validator interface {
	Validate(ctx context.Context, records []domain.CanonicalRecord) ([]domain.CanonicalRecord, int)
}

type Scorer interface {
	Score(ctx context.Context, records []domain.CanonicalRecord) []domain.CanonicalRecord
}

type Publisher interface {
	Publish(ctx context.Context, records []domain.CanonicalRecord) (int, []string)
}

// CallCounter reports how many outbound calls a source client has made.
type CallCounter interface {
	CallsMade() int64
}
