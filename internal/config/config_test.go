package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
database:
  driver: sqlite
  path: /tmp/h.db
social:
  base_url: https://social.example.com
  queries:
    - value: "#fintech"
      kind: hashtag
      competitor: acme
      tier: 1
feeds:
  feeds:
    - value: https://news.example.com/rss
ratelimit:
  requests_per_minute: 30
  base_backoff: 1s
scoring:
  keywords:
    regulation: 2.5
`)
	t.Setenv("SOCIAL_API_TOKEN", "tok-123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/h.db", cfg.Database.DSN())
	assert.Equal(t, "tok-123", cfg.Social.Token)
	require.Len(t, cfg.Social.Queries, 1)
	assert.Equal(t, "#fintech", cfg.Social.Queries[0].Value)
	assert.Equal(t, 1, cfg.Social.Queries[0].Tier)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, time.Second, cfg.RateLimit.BaseBackoff)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.MaxBackoff)
	assert.Equal(t, time.Hour, cfg.Pipeline.RetryWindow)
	assert.Equal(t, []string{"theme", "claims"}, cfg.Social.Stages)
	assert.InDelta(t, 2.5, cfg.Scoring.Keywords["regulation"], 1e-9)
}

func TestLoad_TokenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
social:
  base_url: https://social.example.com
  token_env: MY_SOCIAL_TOKEN
`)
	t.Setenv("MY_SOCIAL_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Social.Token)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "database:\n  driver: mysql\nsocial:\n  enabled: false\n"},
		{"social without base url", "social:\n  enabled: true\n"},
		{"too many stages", "social:\n  base_url: http://x\n  stages: [theme, claims, theme]\n"},
		{"unknown stage", "social:\n  base_url: http://x\n  stages: [sentiment]\n"},
		{"backoff order", "social:\n  enabled: false\nratelimit:\n  base_backoff: 1h\n  max_backoff: 1m\n"},
		{"feed without url", "social:\n  enabled: false\nfeeds:\n  feeds:\n    - competitor: acme\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.yaml", tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_PostgresDSN(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "h", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=h sslmode=disable", c.DSN())
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Empty(t, rules.Compliance)

	path := writeFile(t, "rules.yaml", `
compliance:
  - name: no_guarantees
    expression: content.contains("guaranteed returns")
    status: REJECTED
    message: promises guaranteed returns
patterns:
  - category: regulatory
    severity: high
    review: true
    patterns: ["\\bSEC\\b", "enforcement"]
`)
	rules, err = LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules.Compliance, 1)
	assert.Equal(t, "REJECTED", rules.Compliance[0].Status)
	require.Len(t, rules.Patterns, 1)
	assert.True(t, rules.Patterns[0].Review)
	assert.Len(t, rules.Patterns[0].Patterns, 2)

	bad := writeFile(t, "bad.yaml", "compliance:\n  - name: x\n")
	_, err = LoadRules(bad)
	assert.Error(t, err)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
