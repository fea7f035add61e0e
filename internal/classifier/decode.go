package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/timmy/harvester/internal/domain"
)

const (
	maxTopics  = 5
	maxClaims  = 5
	maxSummary = 300
)

// modelResponse is the JSON shape both model stages are asked for.
type modelResponse struct {
	Category       string   `json:"category"`
	Confidence     *float64 `json:"confidence"`
	Topics         []string `json:"topics"`
	Claims         []string `json:"claims"`
	Severity       string   `json:"severity"`
	RequiresReview bool     `json:"requires_review"`
	Summary        string   `json:"summary"`
}

var knownCategories = map[string]bool{
	domain.CategoryRegulatory: true,
	"research":                true,
	"competitor":              true,
	"promotional":             true,
	DefaultCategory:           true,
}

// parseResponse decodes a model response into a typed result.
// It tolerates a leading <think> block and markdown code fences.
func parseResponse(stage, content string) (domain.ClassificationResult, error) {
	jsonStr, err := extractJSON(content)
	if err != nil {
		return domain.ClassificationResult{}, err
	}

	var resp modelResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if resp.Category == "" && resp.Confidence == nil && resp.Severity == "" {
		return domain.ClassificationResult{}, fmt.Errorf("response has none of category, confidence, severity")
	}

	return validateAndFix(stage, &resp), nil
}

// extractJSON returns the first balanced JSON object in content.
func extractJSON(content string) (string, error) {
	if end := strings.Index(content, "</think>"); end != -1 {
		content = content[end+len("</think>"):]
	}
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("incomplete JSON in response")
}

// validateAndFix clamps and normalises a decoded response.
func validateAndFix(stage string, resp *modelResponse) domain.ClassificationResult {
	category := strings.ToLower(strings.TrimSpace(resp.Category))
	if !knownCategories[category] {
		category = DefaultCategory
	}

	confidence := DefaultConfidence
	if resp.Confidence != nil {
		confidence = *resp.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	topics := normaliseList(resp.Topics, maxTopics, true)
	claims := normaliseList(resp.Claims, maxClaims, false)

	summary := strings.TrimSpace(resp.Summary)
	if r := []rune(summary); len(r) > maxSummary {
		summary = string(r[:maxSummary])
	}

	return domain.ClassificationResult{
		Stage:           stage,
		Category:        category,
		Confidence:      confidence,
		MatchedPatterns: claims,
		Topics:          topics,
		Severity:        domain.ParseSeverity(resp.Severity),
		RequiresReview:  resp.RequiresReview,
		Summary:         summary,
	}
}

func normaliseList(in []string, limit int, lower bool) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}
