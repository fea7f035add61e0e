package domain

import "strings"

// Severity is the risk annotation produced by a classifier stage.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity maps free-form text onto a Severity, ignoring case and
// surrounding space. Unknown values become SeverityNone.
func ParseSeverity(s string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return sev
	default:
		return SeverityNone
	}
}

// CategoryRegulatory is the category label that triggers the regulatory boost.
const CategoryRegulatory = "regulatory"

// ClassificationResult is the output of one classifier stage for one item.
type ClassificationResult struct {
	Stage           string   `json:"stage"`
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
	Topics          []string `json:"topics,omitempty"`
	Severity        Severity `json:"severity"`
	RequiresReview  bool     `json:"requires_review"`
	Summary         string   `json:"summary,omitempty"`

	// Fallback is true when the result is the stage's low-confidence default.
	Fallback bool `json:"fallback,omitempty"`
}

// Classifications maps item ID to the results of each classifier stage, in stage order.
type Classifications map[string][]ClassificationResult

// Add appends a stage result for the given item.
func (c Classifications) Add(itemID string, r ClassificationResult) {
	c[itemID] = append(c[itemID], r)
}
