// Package pipeline sequences the harvest stages of one run and derives its
// terminal status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/harvester/internal/classifier"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/scanner"
	"github.com/timmy/harvester/internal/source"
)

// ErrStagePanic wraps a panic recovered from a stage.
var ErrStagePanic = errors.New("stage panicked")

const (
	defaultRetryWindow         = time.Hour
	defaultClassifyConcurrency = 4
)

// Deps are the collaborators and settings of one orchestrator.
type Deps struct {
	Source      string
	Scanner     Scanner
	ScanConfig  scanner.Config
	Harvester   Harvester
	Classifiers []classifier.Classifier // applied in order, at most two
	Transformer Transformer
	Validator   Validator
	Scorer      Scorer
	Publisher   Publisher
	Calls       CallCounter // optional

	ClassifyConcurrency int
	RunTimeout          time.Duration // zero means the caller's deadline only
	RetryWindow         time.Duration // retry-after used when the source gives no hint

	Logger *logger.Logger
	Now    func() time.Time
	NewID  func() string
}

// Orchestrator runs scan, harvest, classify, transform, validate, score and
// publish in order. Each stage sees the complete output of the previous one.
type Orchestrator struct {
	deps Deps
}

// New creates an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Scanner == nil, deps.Harvester == nil, deps.Transformer == nil,
		deps.Validator == nil, deps.Scorer == nil, deps.Publisher == nil:
		return nil, fmt.Errorf("pipeline %s: every stage collaborator is required", deps.Source)
	case len(deps.Classifiers) > 2:
		return nil, fmt.Errorf("pipeline %s: at most 2 classifier stages, got %d", deps.Source, len(deps.Classifiers))
	}
	if deps.RetryWindow <= 0 {
		deps.RetryWindow = defaultRetryWindow
	}
	if deps.ClassifyConcurrency <= 0 {
		deps.ClassifyConcurrency = defaultClassifyConcurrency
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Orchestrator{deps: deps}, nil
}

// Source returns the source variant this orchestrator runs.
func (o *Orchestrator) Source() string {
	return o.deps.Source
}

// run is the mutable state of a single Execute call.
type run struct {
	result   *domain.RunResult
	counters *domain.Counters
	calls    int64
}

// Execute performs one run.
// Returns:
//   - *domain.RunResult: the terminal outcome; never nil.
//   - error: non-nil only when the run was aborted by an unexpected error
//     (status FAILED). Rate limits and source errors are reported through
//     the result status instead.
func (o *Orchestrator) Execute(ctx context.Context) (*domain.RunResult, error) {
	r := &run{
		result: &domain.RunResult{
			RunID:     o.deps.NewID(),
			Source:    o.deps.Source,
			StartedAt: o.deps.Now(),
		},
		counters: domain.NewCounters(),
	}
	if o.deps.Calls != nil {
		r.calls = o.deps.Calls.CallsMade()
	}

	if o.deps.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.RunTimeout)
		defer cancel()
	}
	ctx = logger.FromContextOr(ctx, o.deps.Logger).WithContext(ctx)
	ctx = logger.SetRunID(ctx, r.result.RunID)
	ctx = logger.SetSource(ctx, o.deps.Source)

	logger.CtxInfo(ctx, "Starting harvest run")
	err := o.execute(ctx, r)
	o.finish(ctx, r)
	return r.result, err
}

func (o *Orchestrator) execute(ctx context.Context, r *run) error {
	// SCANNING
	var scan *scanner.Result
	err := o.stage(ctx, r, domain.StageScanning, func(ctx context.Context) error {
		var err error
		scan, err = o.deps.Scanner.Scan(ctx, o.deps.ScanConfig)
		return err
	})
	if scan != nil {
		r.counters.Add(domain.CounterFound, scan.Stats.Unique)
		r.counters.Add(domain.CounterDuplicatesRemoved, scan.Stats.DuplicatesRemoved)
		r.counters.Add(domain.CounterFilteredOld, scan.Stats.FilteredOld)
		r.counters.Add(domain.CounterQueriesFailed, scan.Stats.QueriesFailed)
		r.result.ScanErrors = append([]string(nil), scan.Errors...)
	}
	if err != nil {
		return o.scanFailed(ctx, r, err)
	}
	if scan == nil || len(scan.Items) == 0 {
		return o.empty(ctx, r, domain.StageScanning)
	}

	// HARVESTING
	var enriched []domain.EnrichedItem
	err = o.stage(ctx, r, domain.StageHarvesting, func(ctx context.Context) error {
		var failed int
		enriched, failed = o.deps.Harvester.Harvest(ctx, scan.Items)
		r.counters.Add(domain.CounterHarvested, len(enriched))
		r.counters.Add(domain.CounterFailed, failed)
		return nil
	})
	if err != nil {
		return o.abort(r, domain.StageHarvesting, err)
	}
	if len(enriched) == 0 {
		return o.empty(ctx, r, domain.StageHarvesting)
	}

	// CLASSIFYING
	cls := domain.Classifications{}
	if len(o.deps.Classifiers) > 0 {
		err = o.stage(ctx, r, domain.StageClassifying, func(ctx context.Context) error {
			o.classify(ctx, r, enriched, cls)
			return nil
		})
		if err != nil {
			return o.abort(r, domain.StageClassifying, err)
		}
	}

	// TRANSFORMING
	var records []domain.CanonicalRecord
	err = o.stage(ctx, r, domain.StageTransforming, func(ctx context.Context) error {
		var failed int
		records, failed = o.deps.Transformer.Transform(ctx, enriched, cls)
		r.counters.Add(domain.CounterTransformed, len(records))
		r.counters.Add(domain.CounterFailed, failed)
		return nil
	})
	if err != nil {
		return o.abort(r, domain.StageTransforming, err)
	}
	if len(records) == 0 {
		return o.empty(ctx, r, domain.StageTransforming)
	}

	// VALIDATING
	err = o.stage(ctx, r, domain.StageValidating, func(ctx context.Context) error {
		validated, skipped := o.deps.Validator.Validate(ctx, records)
		r.counters.Add(domain.CounterValidated, len(validated))
		r.counters.Add(domain.CounterFailed, skipped)
		records = withoutRejected(validated)
		r.counters.Add(domain.CounterRejected, len(validated)-len(records))
		return nil
	})
	if err != nil {
		return o.abort(r, domain.StageValidating, err)
	}
	if len(records) == 0 {
		return o.empty(ctx, r, domain.StageValidating)
	}

	// SCORING
	err = o.stage(ctx, r, domain.StageScoring, func(ctx context.Context) error {
		records = o.deps.Scorer.Score(ctx, records)
		r.counters.Add(domain.CounterScored, len(records))
		return nil
	})
	if err != nil {
		return o.abort(r, domain.StageScoring, err)
	}
	if len(records) == 0 {
		return o.empty(ctx, r, domain.StageScoring)
	}

	// PUBLISHING
	err = o.stage(ctx, r, domain.StagePublishing, func(ctx context.Context) error {
		count, ids := o.deps.Publisher.Publish(ctx, records)
		r.counters.Add(domain.CounterPublished, count)
		r.counters.Add(domain.CounterFailed, len(records)-count)
		r.result.PublishedIDs = ids
		return nil
	})
	if err != nil {
		return o.abort(r, domain.StagePublishing, err)
	}

	r.result.Status = domain.DeriveStatus(r.counters.Snapshot())
	return nil
}

// classify runs each classifier stage over every item. Stages never drop items.
func (o *Orchestrator) classify(ctx context.Context, r *run, items []domain.EnrichedItem, cls domain.Classifications) {
	regulatory := make(map[string]bool)
	review := make(map[string]bool)
	for _, c := range o.deps.Classifiers {
		results := classifier.ClassifyBatch(ctx, c, items, o.deps.ClassifyConcurrency)
		for _, item := range items {
			id := item.ID()
			res, ok := results[id]
			if !ok {
				res = classifier.Default(c.Name())
			}
			cls.Add(id, res)
			if res.Fallback {
				r.counters.Inc(domain.CounterClassifierFallbacks)
			}
			if res.Category == domain.CategoryRegulatory {
				regulatory[id] = true
			}
			if res.RequiresReview {
				review[id] = true
			}
		}
	}
	r.counters.Add(domain.CounterClassified, len(items))
	r.counters.Add(domain.CounterRegulatoryFlagged, len(regulatory))
	r.counters.Add(domain.CounterReviewFlagged, len(review))
}

// stage runs fn as the named stage. A panic becomes an ErrStagePanic error.
func (o *Orchestrator) stage(ctx context.Context, r *run, stage domain.Stage, fn func(ctx context.Context) error) (err error) {
	ctx = logger.SetStage(ctx, string(stage))
	start := o.deps.Now()

	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).WithField("stack", string(debug.Stack())).Errorf("Stage panicked: %v", rec)
			err = fmt.Errorf("%w: %s: %v", ErrStagePanic, stage, rec)
		}
		logger.With(logger.Fields{logger.FieldStage: string(stage)}).
			WithDuration(o.deps.Now().Sub(start)).
			Debug(ctx, "Stage finished")
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("before %s: %w", stage, err)
	}
	return fn(ctx)
}

// scanFailed routes a scanner error to its terminal status.
func (o *Orchestrator) scanFailed(ctx context.Context, r *run, err error) error {
	res := r.result
	res.SetError(err)
	res.FailedStage = domain.StageScanning

	if rl, ok := source.AsRateLimit(err); ok {
		wait := rl.RetryAfter
		if wait <= 0 {
			wait = o.deps.RetryWindow
		}
		at := o.deps.Now().Add(wait)
		res.Status = domain.RunStatusRateLimited
		res.RetryAfter = &at
		logger.FromContext(ctx).WithError(err).Warnf("Source rate limited, retry after %s", at.Format(time.RFC3339))
		return nil
	}

	if errors.Is(err, ErrStagePanic) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return o.abort(r, domain.StageScanning, err)
	}

	res.Status = domain.RunStatusIncomplete
	res.RetryScheduled = true
	logger.FromContext(ctx).WithError(err).Warn("Scan failed, retry scheduled")
	return nil
}

// empty ends a run whose stage produced no items.
func (o *Orchestrator) empty(ctx context.Context, r *run, after domain.Stage) error {
	if r.counters.Get(domain.CounterFailed) == 0 {
		r.result.Status = domain.RunStatusComplete
	} else {
		r.result.Status = domain.DeriveStatus(r.counters.Snapshot())
	}
	logger.FromContext(ctx).WithField(logger.FieldStage, string(after)).Info("No items left, ending run")
	return nil
}

// abort ends the run as FAILED with the statistics gathered so far.
func (o *Orchestrator) abort(r *run, stage domain.Stage, err error) error {
	r.result.Status = domain.RunStatusFailed
	r.result.FailedStage = stage
	r.result.SetError(err)
	return err
}

func (o *Orchestrator) finish(ctx context.Context, r *run) {
	if o.deps.Calls != nil {
		r.counters.Add(domain.CounterCallsMade, int(o.deps.Calls.CallsMade()-r.calls))
	}
	res := r.result
	res.Statistics = r.counters.Snapshot()
	res.FinishedAt = o.deps.Now()
	if res.PublishedIDs == nil {
		res.PublishedIDs = []string{}
	}

	entry := logger.With(logger.Fields{
		domain.CounterFound:     res.Statistics.Found,
		domain.CounterPublished: res.Statistics.Published,
	}).WithFailed(res.Statistics.Failed).
		WithStatus(string(res.Status)).
		WithDuration(res.Duration())
	if res.Status == domain.RunStatusFailed {
		entry.Error(ctx, "Harvest run failed: %s", res.Error)
		return
	}
	entry.Info(ctx, "Harvest run finished")
}

func withoutRejected(records []domain.CanonicalRecord) []domain.CanonicalRecord {
	out := make([]domain.CanonicalRecord, 0, len(records))
	for _, rec := range records {
		if rec.ComplianceStatus == domain.ComplianceRejected {
			continue
		}
		out = append(out, rec)
	}
	return out
}
