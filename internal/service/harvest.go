// Package service runs harvest pipelines on behalf of the CLI and the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/pipeline"
)

var (
	// ErrUnknownSource is returned for a source with no configured pipeline.
	ErrUnknownSource = errors.New("unknown source")
	// ErrRunInProgress is returned when the source is already running.
	ErrRunInProgress = errors.New("run already in progress")
)

// Runner executes one pipeline run.
type Runner interface {
	Execute(ctx context.Context) (*domain.RunResult, error)
}

// RunStore persists run summaries.
type RunStore interface {
	Save(ctx context.Context, run *domain.HarvestRun) error
}

// ReportArchiver stores full run reports.
type ReportArchiver interface {
	Archive(ctx context.Context, r *domain.RunResult) (string, error)
}

// SourceStatus is the current state of one source.
type SourceStatus struct {
	Source  string            `json:"source"`
	Running bool              `json:"running"`
	Last    *domain.RunResult `json:"last,omitempty"`
}

// HarvestService runs pipelines and records their outcome.
type HarvestService struct {
	runners  map[string]Runner
	runs     RunStore
	archiver ReportArchiver
	logger   *logger.Logger

	mu      sync.Mutex
	running map[string]bool
	last    map[string]*domain.RunResult
}

// NewHarvestService creates a new harvest service.
// Parameters:
//   - runners: one runner per source ID.
//   - runs: store for run summaries.
//   - archiver: optional store for full run reports; may be nil.
//   - log: service logger.
// Returns:
//   - *HarvestService: initialized service.
func NewHarvestService(runners map[string]Runner, runs RunStore, archiver ReportArchiver, log *logger.Logger) *HarvestService {
	return &HarvestService{
		runners:  runners,
		runs:     runs,
		archiver: archiver,
		logger:   log,
		running:  make(map[string]bool),
		last:     make(map[string]*domain.RunResult),
	}
}

// Runners adapts orchestrators to the Runner interface.
func Runners(orchs map[string]*pipeline.Orchestrator) map[string]Runner {
	out := make(map[string]Runner, len(orchs))
	for id, o := range orchs {
		out[id] = o
	}
	return out
}

func (s *HarvestService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Sources returns the configured source IDs in sorted order.
func (s *HarvestService) Sources() []string {
	ids := make([]string, 0, len(s.runners))
	for id := range s.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Run executes one run of the given source. A second run of the same
// source is refused while one is in flight.
// Returns:
//   - *domain.RunResult: the run outcome; nil only for ErrUnknownSource and ErrRunInProgress.
//   - error: the orchestrator's critical error, if any.
func (s *HarvestService) Run(ctx context.Context, sourceID string) (*domain.RunResult, error) {
	runner, ok := s.runners[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	s.mu.Lock()
	if s.running[sourceID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, sourceID)
	}
	s.running[sourceID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, sourceID)
		s.mu.Unlock()
	}()

	res, runErr := runner.Execute(ctx)
	if res != nil {
		s.record(ctx, res)
	}
	return res, runErr
}

// record persists and archives a finished run. Failures are logged only;
// the run outcome is already decided.
func (s *HarvestService) record(ctx context.Context, res *domain.RunResult) {
	// The run may have ended because ctx did; the bookkeeping still happens.
	ctx = context.WithoutCancel(ctx)
	summary := domain.NewHarvestRun(res)

	if s.archiver != nil {
		key, err := s.archiver.Archive(ctx, res)
		if err != nil {
			s.log(ctx).WithField(logger.FieldRunID, res.RunID).WithError(err).Warn("Failed to archive run report")
		} else {
			summary.ReportKey = key
		}
	}

	if s.runs != nil {
		if err := s.runs.Save(ctx, summary); err != nil {
			s.log(ctx).WithField(logger.FieldRunID, res.RunID).WithError(err).Error("Failed to save run summary")
		}
	}

	s.mu.Lock()
	s.last[res.Source] = res
	s.mu.Unlock()
}

// Status reports every configured source.
func (s *HarvestService) Status() []SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceStatus, 0, len(s.runners))
	for _, id := range s.Sources() {
		out = append(out, SourceStatus{
			Source:  id,
			Running: s.running[id],
			Last:    s.last[id],
		})
	}
	return out
}
