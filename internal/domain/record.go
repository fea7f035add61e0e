package domain

import (
	"time"
)

// ComplianceStatus is set on a CanonicalRecord only by the validator adapter.
type ComplianceStatus string

const (
	ComplianceUnset     ComplianceStatus = ""
	ComplianceCompliant ComplianceStatus = "COMPLIANT"
	ComplianceWarning   ComplianceStatus = "WARNING"
	ComplianceRejected  ComplianceStatus = "REJECTED"
)

const (
	MaxTitleLength = 500
	MaxURLLength   = 2048
	MinScore       = 0.0
	MaxScore       = 10.0
)

// CanonicalRecord is the source-agnostic research entry handed to the
// compliance, scoring and publishing collaborators.
type CanonicalRecord struct {
	ID               string           `json:"id"`
	ExternalID       string           `json:"external_id"`
	Source           string           `json:"source"`
	Title            string           `json:"title"`
	Content          string           `json:"content"`
	URL              string           `json:"url"`
	Tags             []string         `json:"tags"`
	Metadata         map[string]any   `json:"metadata"`
	CreatedAt        time.Time        `json:"created_at"`
	PublishedAt      time.Time        `json:"published_at"`
	Score            float64          `json:"score"`
	ComplianceStatus ComplianceStatus `json:"compliance_status"`
	ComplianceNotes  []string         `json:"compliance_notes,omitempty"`
}

// Clone returns a deep copy of the record's slices and metadata map.
func (r CanonicalRecord) Clone() CanonicalRecord {
	out := r
	out.Tags = append([]string(nil), r.Tags...)
	out.ComplianceNotes = append([]string(nil), r.ComplianceNotes...)
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// WithCompliance returns a copy with the compliance status and notes set.
func (r CanonicalRecord) WithCompliance(status ComplianceStatus, notes []string) CanonicalRecord {
	out := r.Clone()
	out.ComplianceStatus = status
	out.ComplianceNotes = append([]string(nil), notes...)
	return out
}

// WithScore returns a copy with the score clamped to [MinScore, MaxScore].
func (r CanonicalRecord) WithScore(score float64) CanonicalRecord {
	out := r.Clone()
	out.Score = ClampScore(score)
	return out
}

// WithMetadata returns a copy with one metadata key set.
func (r CanonicalRecord) WithMetadata(key string, value any) CanonicalRecord {
	out := r.Clone()
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata[key] = value
	return out
}

// MetaString reads a string metadata value.
func (r CanonicalRecord) MetaString(key string) string {
	s, _ := r.Metadata[key].(string)
	return s
}

// MetaInt reads an integer metadata value stored as any numeric type.
func (r CanonicalRecord) MetaInt(key string) int64 {
	switch v := r.Metadata[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// ClampScore bounds a score to [MinScore, MaxScore].
func ClampScore(score float64) float64 {
	if score != score || score < MinScore { // NaN
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
