package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/config"
	"github.com/timmy/harvester/internal/domain"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func record(id, externalID string, score float64) domain.CanonicalRecord {
	now := time.Now().UTC()
	return domain.CanonicalRecord{
		ID:               id,
		ExternalID:       externalID,
		Source:           domain.SourceSocial,
		Title:            "title " + externalID,
		Content:          "content " + externalID,
		URL:              "https://example.com/" + externalID,
		Tags:             []string{"fintech"},
		Metadata:         map[string]any{"category": "general"},
		CreatedAt:        now,
		PublishedAt:      now,
		Score:            score,
		ComplianceStatus: domain.ComplianceCompliant,
	}
}

func TestResearchRepository_SaveBatchUpserts(t *testing.T) {
	ctx := context.Background()
	repo := NewResearchRepository(openTestDB(t))

	ids, err := repo.SaveBatch(ctx, []domain.CanonicalRecord{record("a", "1", 1), record("b", "2", 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	updated := record("a", "1", 7.5)
	updated.Title = "new title"
	_, err = repo.SaveBatch(ctx, []domain.CanonicalRecord{updated})
	require.NoError(t, err)

	count, err := repo.Count(ctx, domain.SourceSocial)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)
	assert.InDelta(t, 7.5, got.Score, 1e-9)
	assert.Equal(t, domain.StringArray{"fintech"}, got.Tags)
	assert.Equal(t, "general", got.Metadata["category"])
}

func TestResearchRepository_SaveAndListTop(t *testing.T) {
	ctx := context.Background()
	repo := NewResearchRepository(openTestDB(t))

	for i, score := range []float64{3, 9, 5} {
		id := string(rune('a' + i))
		_, err := repo.Save(ctx, record(id, id, score))
		require.NoError(t, err)
	}

	top, err := repo.ListTop(ctx, domain.SourceSocial, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "c", top[1].ID)

	ids, err := repo.SaveBatch(ctx, nil)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(openTestDB(t))

	start := time.Now().UTC().Add(-time.Hour)
	retry := start.Add(2 * time.Hour)
	older := domain.NewHarvestRun(&domain.RunResult{
		RunID:      "run-1",
		Source:     domain.SourceSocial,
		Status:     domain.RunStatusRateLimited,
		RetryAfter: &retry,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	})
	newer := domain.NewHarvestRun(&domain.RunResult{
		RunID:      "run-2",
		Source:     domain.SourceSocial,
		Status:     domain.RunStatusComplete,
		Statistics: domain.RunStatistics{Found: 4, Published: 4},
		StartedAt:  start.Add(30 * time.Minute),
		FinishedAt: start.Add(31 * time.Minute),
	})
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	runs, err := repo.ListRecent(ctx, domain.SourceSocial, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, 4, runs[0].Published)

	got, err := repo.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRateLimited, got.Status)
	require.NotNil(t, got.RetryAfter)

	last, err := repo.LastScheduledRetry(ctx, domain.SourceSocial)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-1", last.ID)

	none, err := repo.LastScheduledRetry(ctx, domain.SourceFeed)
	require.NoError(t, err)
	assert.Nil(t, none)
}
