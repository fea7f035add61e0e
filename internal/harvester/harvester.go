// Package harvester fetches full detail for discovered items.
package harvester

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/source"
	"golang.org/x/sync/errgroup"
)

// Harvester calls the source client's detail fetch per item.
type Harvester struct {
	client      source.Client
	concurrency int
	maxKeywords int
	logger      *logger.Logger
	now         func() time.Time
}

// Config holds harvester configuration.
type Config struct {
	Concurrency int
	MaxKeywords int
}

// New creates a Harvester.
func New(client source.Client, cfg Config, log *logger.Logger) *Harvester {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = 10
	}
	return &Harvester{
		client:      client,
		concurrency: cfg.Concurrency,
		maxKeywords: cfg.MaxKeywords,
		logger:      log,
		now:         time.Now,
	}
}

func (h *Harvester) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, h.logger)
}

// Harvest fetches detail for every item. A failing item is logged and
// dropped; the batch never fails as a whole.
// Returns:
//   - []domain.EnrichedItem: one entry per successfully fetched item.
//   - int: number of items that failed.
func (h *Harvester) Harvest(ctx context.Context, items []domain.DiscoveredItem) ([]domain.EnrichedItem, int) {
	slots := make([]*domain.EnrichedItem, len(items))

	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for i := range items {
		g.Go(func() error {
			enriched, err := h.harvestOne(ctx, items[i])
			if err != nil {
				h.log(ctx).WithFields(logger.Fields{
					logger.FieldItemID: items[i].ExternalID,
				}).WithError(err).Warn("Failed to harvest item")
				return nil
			}
			slots[i] = enriched
			return nil
		})
	}
	_ = g.Wait()

	out := make([]domain.EnrichedItem, 0, len(items))
	for _, e := range slots {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, len(items) - len(out)
}

func (h *Harvester) harvestOne(ctx context.Context, item domain.DiscoveredItem) (enriched *domain.EnrichedItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during detail fetch: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detail, err := h.client.Detail(ctx, item.ExternalID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, fmt.Errorf("empty detail for %s", item.ExternalID)
	}

	author := detail.Author
	if author.Handle == "" {
		author.Handle = item.Author
	}

	text := detail.Text
	if text == "" {
		text = item.Text
	}

	extra := make(map[string]string, len(detail.Extra))
	for k, v := range detail.Extra {
		extra[k] = v
	}

	tags := mergeTags(item.Tags, detail.Tags)
	return &domain.EnrichedItem{
		Item:       withTags(item, tags),
		Title:      detail.Title,
		FullText:   text,
		Engagement: detail.Engagement,
		Keywords:   ExtractKeywords(text, tags, h.maxKeywords),
		Author:     author,
		Extra:      extra,
		FetchedAt:  h.now(),
	}, nil
}

func withTags(item domain.DiscoveredItem, tags []string) domain.DiscoveredItem {
	item.Tags = tags
	return item
}

func mergeTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if _, ok := seen[t]; ok || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
