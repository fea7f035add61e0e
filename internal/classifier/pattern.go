package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/timmy/harvester/internal/domain"
)

// NoMatchCategory is reported when no pattern group matched.
const NoMatchCategory = "uncategorized"

// PatternGroup is one category's patterns. Groups are evaluated in slice order.
type PatternGroup struct {
	Category string
	Severity domain.Severity
	Review   bool
	Patterns []*regexp.Regexp
}

// NewPatternGroup compiles case-insensitive patterns for a category.
func NewPatternGroup(category string, severity domain.Severity, review bool, patterns ...string) (PatternGroup, error) {
	g := PatternGroup{Category: category, Severity: severity, Review: review}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return PatternGroup{}, fmt.Errorf("category %s: pattern %q: %w", category, p, err)
		}
		g.Patterns = append(g.Patterns, re)
	}
	return g, nil
}

func mustGroup(category string, severity domain.Severity, review bool, patterns ...string) PatternGroup {
	g, err := NewPatternGroup(category, severity, review, patterns...)
	if err != nil {
		panic(err)
	}
	return g
}

// DefaultPatternGroups returns the built-in groups in priority order:
// regulatory, research, competitor, promotional, general.
func DefaultPatternGroups() []PatternGroup {
	return []PatternGroup{
		mustGroup(domain.CategoryRegulatory, domain.SeverityHigh, true,
			`\b(sec|fca|cfpb|finra|esma|regulator[s]?)\b`,
			`\benforcement action\b`,
			`\b(fine[ds]?|penalt(y|ies)|sanction(s|ed)?)\b`,
			`\bconsent order\b`,
			`\bcease[- ]and[- ]desist\b`,
		),
		mustGroup("research", domain.SeverityLow, false,
			`\b(study|survey|report|whitepaper|white paper)\b`,
			`\b(analysis|dataset|findings)\b`,
			`\bpeer[- ]reviewed\b`,
		),
		mustGroup("competitor", domain.SeverityMedium, false,
			`\b(launch(es|ed)?|rolls? out|announce[sd]?)\b`,
			`\b(acquires?|acquisition|partnership|merger)\b`,
			`\bnew (feature|product|card|account)\b`,
		),
		mustGroup("promotional", domain.SeverityLow, true,
			`\b(sign[- ]up bonus|referral code|promo code)\b`,
			`\b(guaranteed returns?|risk[- ]free)\b`,
			`\b\d+(\.\d+)?% (apy|apr|cashback)\b`,
		),
		mustGroup(DefaultCategory, domain.SeverityNone, false,
			`\b(bank(ing)?|fintech|payments?|lending|credit)\b`,
		),
	}
}

// PatternClassifier is a rule-based stage: the first group with a match wins.
type PatternClassifier struct {
	name   string
	groups []PatternGroup
}

// NewPatternClassifier creates a pattern stage. nil groups use DefaultPatternGroups.
func NewPatternClassifier(groups []PatternGroup) *PatternClassifier {
	if groups == nil {
		groups = DefaultPatternGroups()
	}
	return &PatternClassifier{name: StagePattern, groups: groups}
}

// Name implements Classifier.
func (p *PatternClassifier) Name() string {
	return p.name
}

// Classify implements Classifier.
func (p *PatternClassifier) Classify(_ context.Context, text string, _ Context) domain.ClassificationResult {
	if strings.TrimSpace(text) == "" {
		return Default(p.name)
	}

	for _, g := range p.groups {
		var matched []string
		var topics []string
		seen := map[string]struct{}{}
		for _, re := range g.Patterns {
			m := re.FindString(text)
			if m == "" {
				continue
			}
			matched = append(matched, re.String())
			term := strings.ToLower(m)
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				topics = append(topics, term)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := 0.5 + 0.15*float64(len(matched)-1)
		if confidence > 0.95 {
			confidence = 0.95
		}
		return domain.ClassificationResult{
			Stage:           p.name,
			Category:        g.Category,
			Confidence:      confidence,
			MatchedPatterns: matched,
			Topics:          topics,
			Severity:        g.Severity,
			RequiresReview:  g.Review,
			Summary:         fmt.Sprintf("matched %d %s pattern(s)", len(matched), g.Category),
		}
	}

	return domain.ClassificationResult{
		Stage:      p.name,
		Category:   NoMatchCategory,
		Confidence: DefaultConfidence,
		Severity:   domain.SeverityNone,
		Summary:    "no categories matched",
	}
}
