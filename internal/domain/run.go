package domain

import (
	"sort"
	"sync"
	"time"
)

// RunStatus is the terminal status of a pipeline run.
type RunStatus string

const (
	RunStatusComplete    RunStatus = "COMPLETE"
	RunStatusPartial     RunStatus = "PARTIAL"
	RunStatusIncomplete  RunStatus = "INCOMPLETE"
	RunStatusFailed      RunStatus = "FAILED"
	RunStatusRateLimited RunStatus = "RATE_LIMITED"
)

// Stage names the orchestrator state while a run is in progress.
type Stage string

const (
	StageScanning     Stage = "SCANNING"
	StageHarvesting   Stage = "HARVESTING"
	StageClassifying  Stage = "CLASSIFYING"
	StageTransforming Stage = "TRANSFORMING"
	StageValidating   Stage = "VALIDATING"
	StageScoring      Stage = "SCORING"
	StagePublishing   Stage = "PUBLISHING"
)

// Core counter names.
const (
	CounterFound       = "found"
	CounterHarvested   = "harvested"
	CounterClassified  = "classified"
	CounterTransformed = "transformed"
	CounterValidated   = "validated"
	CounterScored      = "scored"
	CounterPublished   = "published"
	CounterFailed      = "failed"
)

// Source-specific counter names.
const (
	CounterDuplicatesRemoved   = "duplicates_removed"
	CounterFilteredOld         = "filtered_old"
	CounterQueriesFailed       = "queries_failed"
	CounterCallsMade           = "calls_made"
	CounterRegulatoryFlagged   = "regulatory_flagged"
	CounterReviewFlagged       = "review_flagged"
	CounterRejected            = "rejected"
	CounterClassifierFallbacks = "classifier_fallbacks"
)

// RunStatistics is a snapshot of the per-run counters.
type RunStatistics struct {
	Found       int            `json:"found"`
	Harvested   int            `json:"harvested"`
	Classified  int            `json:"classified"`
	Transformed int            `json:"transformed"`
	Validated   int            `json:"validated"`
	Scored      int            `json:"scored"`
	Published   int            `json:"published"`
	Failed      int            `json:"failed"`
	Extra       map[string]int `json:"extra,omitempty"`
}

// Counters accumulates RunStatistics under a mutex.
// Counters only grow: non-positive increments are ignored.
type Counters struct {
	mu     sync.Mutex
	values map[string]int
}

// NewCounters creates an empty counter set.
func NewCounters() *Counters {
	return &Counters{values: make(map[string]int)}
}

// Add increments the named counter by n.
func (c *Counters) Add(name string, n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.values[name] += n
	c.mu.Unlock()
}

// Inc increments the named counter by one.
func (c *Counters) Inc(name string) {
	c.Add(name, 1)
}

// Get returns the current value of the named counter.
func (c *Counters) Get(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot copies the counters into a RunStatistics value.
func (c *Counters) Snapshot() RunStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := RunStatistics{
		Found:       c.values[CounterFound],
		Harvested:   c.values[CounterHarvested],
		Classified:  c.values[CounterClassified],
		Transformed: c.values[CounterTransformed],
		Validated:   c.values[CounterValidated],
		Scored:      c.values[CounterScored],
		Published:   c.values[CounterPublished],
		Failed:      c.values[CounterFailed],
	}
	for name, v := range c.values {
		if isCoreCounter(name) {
			continue
		}
		if stats.Extra == nil {
			stats.Extra = make(map[string]int)
		}
		stats.Extra[name] = v
	}
	return stats
}

func isCoreCounter(name string) bool {
	switch name {
	case CounterFound, CounterHarvested, CounterClassified, CounterTransformed,
		CounterValidated, CounterScored, CounterPublished, CounterFailed:
		return true
	}
	return false
}

// ExtraNames returns the source-specific counter names in sorted order.
func (s RunStatistics) ExtraNames() []string {
	names := make([]string, 0, len(s.Extra))
	for name := range s.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeriveStatus computes the terminal status of a run that reached publishing.
func DeriveStatus(s RunStatistics) RunStatus {
	switch {
	case s.Found > 0 && s.Published == 0:
		return RunStatusFailed
	case s.Failed > 0:
		return RunStatusPartial
	default:
		return RunStatusComplete
	}
}

// RunResult is the terminal outcome of one pipeline run.
type RunResult struct {
	RunID          string        `json:"run_id"`
	Source         string        `json:"source"`
	Status         RunStatus     `json:"status"`
	Statistics     RunStatistics `json:"statistics"`
	Err            error         `json:"-"`
	Error          string        `json:"error,omitempty"`
	FailedStage    Stage         `json:"failed_stage,omitempty"`
	RetryAfter     *time.Time    `json:"retry_after,omitempty"`
	RetryScheduled bool          `json:"retry_scheduled"`
	PublishedIDs   []string      `json:"published_ids"`
	ScanErrors     []string      `json:"scan_errors,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
}

// SetError records err on the result in both typed and serialisable form.
func (r *RunResult) SetError(err error) {
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
