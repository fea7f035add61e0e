package repository

import (
	"context"
	"fmt"

	"github.com/timmy/harvester/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResearchRepository persists published research entries.
type ResearchRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewResearchRepository creates a new ResearchRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ResearchRepository: repository instance bound to db.
func NewResearchRepository(db *gorm.DB) *ResearchRepository {
	return &ResearchRepository{db: db, batchSize: 100}
}

func upsertOnSource() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}, {Name: "external_id"}},
		UpdateAll: true,
	}
}

// SaveBatch upserts all records in one transaction keyed by (source, external_id).
// Either every record is stored or none is.
// Returns:
//   - []string: IDs of the stored records, in input order.
//   - error: non-nil if the transaction failed.
func (r *ResearchRepository) SaveBatch(ctx context.Context, recs []domain.CanonicalRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	entries := make([]*domain.ResearchEntry, 0, len(recs))
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, domain.NewResearchEntry(rec))
		ids = append(ids, rec.ID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(upsertOnSource()).CreateInBatches(entries, r.batchSize).Error
	})
	if err != nil {
		return nil, fmt.Errorf("batch upsert of %d entries: %w", len(entries), err)
	}
	return ids, nil
}

// Save upserts a single record.
func (r *ResearchRepository) Save(ctx context.Context, rec domain.CanonicalRecord) (string, error) {
	entry := domain.NewResearchEntry(rec)
	if err := r.db.WithContext(ctx).Clauses(upsertOnSource()).Create(entry).Error; err != nil {
		return "", fmt.Errorf("upsert entry %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

// GetByID retrieves an entry by its ID.
func (r *ResearchRepository) GetByID(ctx context.Context, id string) (*domain.ResearchEntry, error) {
	var entry domain.ResearchEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListTop returns the highest scoring entries of a source, newest first on ties.
// An empty source lists across all sources.
func (r *ResearchRepository) ListTop(ctx context.Context, source string, limit int) ([]domain.ResearchEntry, error) {
	var entries []domain.ResearchEntry
	query := r.db.WithContext(ctx)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	if err := query.Order("score DESC").Order("published_at DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Count returns the number of stored entries for a source.
func (r *ResearchRepository) Count(ctx context.Context, source string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ResearchEntry{}).Where("source = ?", source).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ping checks the database connection.
func (r *ResearchRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
