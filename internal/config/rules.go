package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules is the content of the compliance rules file.
type Rules struct {
	Compliance []ComplianceRule `yaml:"compliance"`
	Patterns   []PatternGroup   `yaml:"patterns"`
}

// ComplianceRule is one CEL compliance rule.
type ComplianceRule struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
	Status     string `yaml:"status"` // WARNING or REJECTED
	Message    string `yaml:"message"`
}

// PatternGroup is one category of the feed pattern classifier, in priority order.
type PatternGroup struct {
	Category string   `yaml:"category"`
	Severity string   `yaml:"severity"`
	Review   bool     `yaml:"review"`
	Patterns []string `yaml:"patterns"`
}

// LoadRules reads a rules file. An empty path yields empty Rules so that
// callers fall back to their built-in defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return &Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	for i, r := range rules.Compliance {
		if r.Name == "" || r.Expression == "" {
			return nil, fmt.Errorf("rules file %s: compliance rule %d needs name and expression", path, i)
		}
	}
	for i, g := range rules.Patterns {
		if g.Category == "" || len(g.Patterns) == 0 {
			return nil, fmt.Errorf("rules file %s: pattern group %d needs category and patterns", path, i)
		}
	}
	return &rules, nil
}
