package domain

import "time"

// HarvestRun is the persisted summary of one pipeline run.
type HarvestRun struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Source         string     `gorm:"type:text;not null;index" json:"source"`
	Status         RunStatus  `gorm:"type:text;index" json:"status"`
	Found          int        `gorm:"default:0" json:"found"`
	Harvested      int        `gorm:"default:0" json:"harvested"`
	Published      int        `gorm:"default:0" json:"published"`
	Failed         int        `gorm:"default:0" json:"failed"`
	Statistics     JSONMap    `gorm:"type:text" json:"statistics"`
	RetryAfter     *time.Time `json:"retry_after,omitempty"`
	RetryScheduled bool       `json:"retry_scheduled"`
	ReportKey      string     `gorm:"type:text" json:"report_key,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
	ErrorLog       string     `json:"error_log,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for HarvestRun.
func (HarvestRun) TableName() string {
	return "harvest_runs"
}

// NewHarvestRun builds the persisted summary of a run result.
func NewHarvestRun(r *RunResult) *HarvestRun {
	stats := JSONMap{}
	s := r.Statistics
	for k, v := range map[string]int{
		CounterFound: s.Found, CounterHarvested: s.Harvested, CounterClassified: s.Classified,
		CounterTransformed: s.Transformed, CounterValidated: s.Validated, CounterScored: s.Scored,
		CounterPublished: s.Published, CounterFailed: s.Failed,
	} {
		stats[k] = v
	}
	for k, v := range s.Extra {
		stats[k] = v
	}
	return &HarvestRun{
		ID:             r.RunID,
		Source:         r.Source,
		Status:         r.Status,
		Found:          s.Found,
		Harvested:      s.Harvested,
		Published:      s.Published,
		Failed:         s.Failed,
		Statistics:     stats,
		RetryAfter:     r.RetryAfter,
		RetryScheduled: r.RetryScheduled,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		ErrorLog:       r.Error,
	}
}
