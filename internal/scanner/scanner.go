// Package scanner runs discovery queries against a source client, filters
// hits by recency and deduplicates them by external ID.
package scanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/source"
)

// Config holds the discovery parameters of one scan pass.
type Config struct {
	Queries   []source.Query
	HoursBack int // zero disables the recency filter
	Limit     int // per-query hit limit
}

// Stats holds scan statistics.
// DuplicatesRemoved is always TotalFound minus Unique.
type Stats struct {
	Queries           int `json:"queries"`
	QueriesFailed     int `json:"queries_failed"`
	TotalFound        int `json:"total_found"`
	Unique            int `json:"unique"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	FilteredOld       int `json:"filtered_old"`
}

// Result is the outcome of a scan pass.
type Result struct {
	Items  []domain.DiscoveredItem
	Stats  Stats
	Errors []string
}

// SourceError is returned when every query of a scan pass failed.
type SourceError struct {
	Source string
	Errors []string
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: all %d queries failed: %s", e.Source, len(e.Errors), strings.Join(e.Errors, "; "))
}

// Scanner runs a source client across discovery queries.
type Scanner struct {
	client source.Client
	logger *logger.Logger
	now    func() time.Time
}

// New creates a Scanner over the given client.
func New(client source.Client, log *logger.Logger) *Scanner {
	return &Scanner{client: client, logger: log, now: time.Now}
}

// WithClock overrides the scanner's clock.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

func (s *Scanner) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Scan runs every query and merges their hits in first-seen order.
// Returns:
//   - *Result: items, statistics and per-query errors gathered so far; never nil.
//   - error: a *source.RateLimitError as soon as the provider signals one,
//     a *SourceError when all queries failed, or the context error.
func (s *Scanner) Scan(ctx context.Context, cfg Config) (*Result, error) {
	start := s.now()
	var cutoff time.Time
	if cfg.HoursBack > 0 {
		cutoff = start.Add(-time.Duration(cfg.HoursBack) * time.Hour)
	}

	result := &Result{Items: []domain.DiscoveredItem{}}
	seen := make(map[string]struct{})
	sourceID := s.client.GetSourceID()
	if scoped, ok := s.client.(source.ScanScoped); ok {
		scoped.BeginScan()
	}

	for _, q := range cfg.Queries {
		result.Stats.Queries++
		queryTime := s.now()

		hits, err := s.client.Discover(ctx, q, cfg.Limit)
		if err != nil {
			if _, ok := source.AsRateLimit(err); ok {
				s.log(ctx).WithError(err).WithField(logger.FieldQuery, q.Value).Warn("Scan stopped by rate limit")
				s.finish(result)
				return result, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				s.finish(result)
				return result, ctxErr
			}
			result.Stats.QueriesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("query %q: %v", q.Value, err))
			s.log(ctx).WithError(err).WithField(logger.FieldQuery, q.Value).Warn("Query failed")
			continue
		}

		for _, hit := range hits {
			ts := hit.PublishedAt
			if ts.IsZero() {
				ts = queryTime
			}
			if !cutoff.IsZero() && ts.Before(cutoff) {
				result.Stats.FilteredOld++
				continue
			}

			result.Stats.TotalFound++
			if _, dup := seen[hit.ID]; dup {
				continue
			}
			seen[hit.ID] = struct{}{}

			result.Items = append(result.Items, domain.DiscoveredItem{
				ExternalID:  hit.ID,
				Source:      sourceID,
				URL:         hit.URL,
				PublishedAt: ts,
				Text:        hit.Text,
				Author:      hit.Author,
				Tags:        append([]string(nil), hit.Tags...),
				Query:       q.Value,
				Competitor:  q.Competitor,
				Tier:        q.Tier,
			})
		}
	}

	s.finish(result)

	s.log(ctx).WithFields(logger.Fields{
		"queries":            result.Stats.Queries,
		"queries_failed":     result.Stats.QueriesFailed,
		"total_found":        result.Stats.TotalFound,
		"unique":             result.Stats.Unique,
		"duplicates_removed": result.Stats.DuplicatesRemoved,
		"filtered_old":       result.Stats.FilteredOld,
	}).WithField(logger.FieldDurationMs, s.now().Sub(start).Milliseconds()).Info("Scan completed")

	if result.Stats.Queries > 0 && result.Stats.QueriesFailed == result.Stats.Queries {
		return result, &SourceError{Source: sourceID, Errors: result.Errors}
	}
	return result, nil
}

func (s *Scanner) finish(r *Result) {
	r.Stats.Unique = len(r.Items)
	r.Stats.DuplicatesRemoved = r.Stats.TotalFound - r.Stats.Unique
}
