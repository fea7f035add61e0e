package compliance

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
)

// Rule is one compliance rule: a boolean CEL expression over a record.
// Variables: title, content, url, source (string), tags (list of string),
// metadata (map of string to dyn).
type Rule struct {
	Name       string                  `yaml:"name"`
	Expression string                  `yaml:"expression"`
	Status     domain.ComplianceStatus `yaml:"status"`
	Message    string                  `yaml:"message"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "prohibited_schemes",
			Expression: `content.matches('(?i)\\b(ponzi|pump and dump|pyramid scheme)\\b')`,
			Status:     domain.ComplianceRejected,
			Message:    "mentions a prohibited scheme",
		},
		{
			Name:       "guaranteed_returns",
			Expression: `content.matches('(?i)guaranteed (returns?|profits?)|risk[- ]free')`,
			Status:     domain.ComplianceWarning,
			Message:    "unverified performance claim",
		},
		{
			Name:       "missing_url",
			Expression: `url == ""`,
			Status:     domain.ComplianceWarning,
			Message:    "no source URL",
		},
		{
			Name:       "high_severity",
			Expression: `"severity" in metadata && metadata.severity == "high"`,
			Status:     domain.ComplianceWarning,
			Message:    "high-severity claim needs review",
		},
	}
}

type compiledRule struct {
	Rule
	program cel.Program
}

// RuleChecker evaluates compiled CEL rules. Statuses escalate
// COMPLIANT -> WARNING -> REJECTED; notes collect every matching rule.
type RuleChecker struct {
	rules  []compiledRule
	logger *logger.Logger
}

// NewRuleChecker compiles the rules once.
func NewRuleChecker(rules []Rule, log *logger.Logger) (*RuleChecker, error) {
	env, err := cel.NewEnv(
		cel.Variable("title", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("url", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating CEL environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !validStatus(r.Status) || r.Status == domain.ComplianceCompliant {
			return nil, fmt.Errorf("rule %s: status must be WARNING or REJECTED, got %q", r.Name, r.Status)
		}
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: error compiling CEL expression: %w", r.Name, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("rule %s: expression must be boolean, got %s", r.Name, ast.OutputType())
		}
		p, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %s: error creating program: %w", r.Name, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, program: p})
	}
	return &RuleChecker{rules: compiled, logger: log}, nil
}

// CheckBatch implements Checker.
func (c *RuleChecker) CheckBatch(ctx context.Context, records []domain.CanonicalRecord) ([]Verdict, error) {
	verdicts := make([]Verdict, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		verdicts = append(verdicts, c.check(ctx, r))
	}
	return verdicts, nil
}

func (c *RuleChecker) check(ctx context.Context, r domain.CanonicalRecord) Verdict {
	vars := map[string]any{
		"title":    r.Title,
		"content":  r.Content,
		"url":      r.URL,
		"source":   r.Source,
		"tags":     r.Tags,
		"metadata": flatten(r.Metadata),
	}

	verdict := Verdict{ID: r.ID, Status: domain.ComplianceCompliant}
	for _, rule := range c.rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			logger.FromContextOr(ctx, c.logger).WithFields(logger.Fields{
				logger.FieldItemID: r.ExternalID,
				"rule":             rule.Name,
			}).WithError(err).Debug("Rule evaluation failed")
			continue
		}
		if matched, ok := out.Value().(bool); !ok || !matched {
			continue
		}
		verdict.Notes = append(verdict.Notes, rule.Name+": "+rule.Message)
		if rule.Status == domain.ComplianceRejected || verdict.Status == domain.ComplianceCompliant {
			verdict.Status = rule.Status
		}
	}
	return verdict
}

// flatten keeps metadata values CEL can adapt: strings, numbers, bools and string lists.
func flatten(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch tv := v.(type) {
		case string, bool, int64, float64, []string:
			out[k] = tv
		case int:
			out[k] = int64(tv)
		case int32:
			out[k] = int64(tv)
		case float32:
			out[k] = float64(tv)
		}
	}
	return out
}
