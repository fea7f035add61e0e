package repository

import (
	"context"

	"github.com/timmy/harvester/internal/domain"
	"gorm.io/gorm"
)

// RunRepository handles harvest run summaries.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save creates or replaces a run summary.
func (r *RunRepository) Save(ctx context.Context, run *domain.HarvestRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID retrieves a run summary by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.HarvestRun, error) {
	var run domain.HarvestRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRecent returns the most recent runs, optionally filtered by source.
func (r *RunRepository) ListRecent(ctx context.Context, source string, limit int) ([]domain.HarvestRun, error) {
	var runs []domain.HarvestRun
	query := r.db.WithContext(ctx)
	if source != "" {
		query = query.Where("source = ?", source)
	}
	if err := query.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// LastScheduledRetry returns the newest run of a source that asked for a retry,
// or nil when there is none.
func (r *RunRepository) LastScheduledRetry(ctx context.Context, source string) (*domain.HarvestRun, error) {
	var runs []domain.HarvestRun
	err := r.db.WithContext(ctx).
		Where("source = ? AND (retry_scheduled = ? OR retry_after IS NOT NULL)", source, true).
		Order("started_at DESC").
		Limit(1).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}
