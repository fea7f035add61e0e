package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/timmy/harvester/internal/domain"
)

// ReportArchiver writes run reports to object storage as JSON.
type ReportArchiver struct {
	store  ObjectStorage
	prefix string
}

// NewReportArchiver creates a ReportArchiver writing under prefix.
func NewReportArchiver(store ObjectStorage, prefix string) *ReportArchiver {
	return &ReportArchiver{store: store, prefix: prefix}
}

// ReportKey returns the object key of a run report:
// <prefix>/<source>/<yyyy>/<mm>/<dd>/<run id>.json
func (a *ReportArchiver) ReportKey(r *domain.RunResult) string {
	day := r.StartedAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, r.Source, day, r.RunID+".json")
}

// Archive stores the report of a finished run and returns its key.
func (a *ReportArchiver) Archive(ctx context.Context, r *domain.RunResult) (string, error) {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode run report: %w", err)
	}
	key := a.ReportKey(r)
	if err := a.store.Put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads a run report back.
func (a *ReportArchiver) Load(ctx context.Context, key string) (*domain.RunResult, error) {
	body, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var r domain.RunResult
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("failed to decode run report %s: %w", key, err)
	}
	return &r, nil
}
