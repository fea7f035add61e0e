package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Classifier system prompt
// ============================================================================

// ClassifierSystemPrompt defines the role for every model-backed classifier stage.
const ClassifierSystemPrompt = `You are a research analyst reviewing public posts about financial products and their competitors.
Answer with a single JSON object and nothing else. Do not wrap it in markdown.`

// ============================================================================
// Theme stage
// ============================================================================

// ThemePrompt asks for the content category, topics and whether a human should review the post.
// 主题阶段：内容类别 + 话题 + 是否需要人工复核
const ThemePrompt = `Classify the post below.

Categories: regulatory, research, competitor, promotional, general.

JSON schema:
{
  "category": "regulatory|research|competitor|promotional|general",
  "confidence": 0.0-1.0,
  "topics": ["topic1", "topic2"],   // at most 5, lowercase
  "requires_review": true/false,    // true for screenshots of rates, unverified offers, complaints
  "summary": "one sentence"
}
%s
Post:
%s`

// ============================================================================
// Claims stage
// ============================================================================

// ClaimsPrompt asks for financial or regulatory claims and their severity.
// 声明阶段：识别金融/监管声明及其严重程度
const ClaimsPrompt = `Identify financial or regulatory claims made in the post below and rate their risk.

Severity: none (no claims), low, medium, high (misleading guarantees, regulator action, legal threats).

JSON schema:
{
  "category": "regulatory|research|competitor|promotional|general",
  "confidence": 0.0-1.0,
  "claims": ["claim quoted from the post"],   // at most 5
  "severity": "none|low|medium|high",
  "requires_review": true/false,
  "summary": "one sentence"
}
%s
Post:
%s`

// Hints carries discriminators appended to a stage prompt.
type Hints struct {
	Source     string
	Competitor string
	Tags       []string
}

// Build renders a stage prompt around the post text.
func Build(template string, text string, h Hints) string {
	var b strings.Builder
	if h.Source != "" {
		fmt.Fprintf(&b, "\nSource: %s", h.Source)
	}
	if h.Competitor != "" {
		fmt.Fprintf(&b, "\nTracked competitor: %s", h.Competitor)
	}
	if len(h.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s", strings.Join(h.Tags, ", "))
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	return fmt.Sprintf(template, b.String(), text)
}
