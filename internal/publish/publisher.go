// Package publish writes accepted records to the research repository.
package publish

import (
	"context"
	"sync"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"golang.org/x/sync/errgroup"
)

// Repository is the shared research repository.
type Repository interface {
	SaveBatch(ctx context.Context, records []domain.CanonicalRecord) ([]string, error)
	Save(ctx context.Context, record domain.CanonicalRecord) (string, error)
}

// Publisher persists records batch-first with a per-record fallback.
type Publisher struct {
	repo        Repository
	concurrency int
	logger      *logger.Logger
}

// New creates a Publisher. concurrency bounds the per-record fallback.
func New(repo Repository, concurrency int, log *logger.Logger) *Publisher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Publisher{repo: repo, concurrency: concurrency, logger: log}
}

func (p *Publisher) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, p.logger)
}

// Publish stores records. One batch call is tried first; when it fails each
// record is saved on its own and individual failures are skipped.
// Returns:
//   - int: number of records stored.
//   - []string: IDs of the stored records. Order follows the input on the
//     batch path and is unspecified on the fallback path.
func (p *Publisher) Publish(ctx context.Context, records []domain.CanonicalRecord) (int, []string) {
	if len(records) == 0 {
		return 0, nil
	}

	ids, err := p.repo.SaveBatch(ctx, records)
	if err == nil {
		return len(ids), ids
	}
	p.log(ctx).WithFields(logger.Fields{
		logger.FieldCount: len(records),
	}).WithError(err).Warn("Batch publish failed, falling back to per-record saves")

	var (
		mu  sync.Mutex
		out = make([]string, 0, len(records))
	)
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i := range records {
		g.Go(func() error {
			id, err := p.repo.Save(ctx, records[i])
			if err != nil {
				p.log(ctx).WithFields(logger.Fields{
					logger.FieldItemID: records[i].ID,
				}).WithError(err).Warn("Failed to publish record")
				return nil
			}
			mu.Lock()
			out = append(out, id)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return len(out), out
}
