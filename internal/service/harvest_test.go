package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/harvester/internal/classifier"
	"github.com/timmy/harvester/internal/config"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/repository"
	"github.com/timmy/harvester/internal/storage"
)

type fakeRunner struct {
	release chan struct{}
	started chan struct{}
	result  *domain.RunResult
	err     error
}

func (f *fakeRunner) Execute(context.Context) (*domain.RunResult, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.result, f.err
}

type memRunStore struct {
	mu   sync.Mutex
	runs []*domain.HarvestRun
}

func (m *memRunStore) Save(_ context.Context, run *domain.HarvestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func TestHarvestService_RecordsRun(t *testing.T) {
	res := &domain.RunResult{
		RunID:     "run-1",
		Source:    domain.SourceFeed,
		Status:    domain.RunStatusComplete,
		StartedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	store := &memRunStore{}
	objects := storage.NewMemoryStorage()
	svc := NewHarvestService(
		map[string]Runner{domain.SourceFeed: &fakeRunner{result: res}},
		store,
		storage.NewReportArchiver(objects, "runs"),
		nil,
	)

	got, err := svc.Run(context.Background(), domain.SourceFeed)
	require.NoError(t, err)
	assert.Same(t, res, got)

	require.Len(t, store.runs, 1)
	assert.Equal(t, "run-1", store.runs[0].ID)
	assert.Equal(t, "runs/feed/2026/03/01/run-1.json", store.runs[0].ReportKey)

	ok, err := objects.Exists(context.Background(), store.runs[0].ReportKey)
	require.NoError(t, err)
	assert.True(t, ok)

	status := svc.Status()
	require.Len(t, status, 1)
	assert.False(t, status[0].Running)
	assert.Same(t, res, status[0].Last)
}

func TestHarvestService_UnknownSource(t *testing.T) {
	svc := NewHarvestService(map[string]Runner{}, nil, nil, nil)
	_, err := svc.Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestHarvestService_RefusesConcurrentRun(t *testing.T) {
	runner := &fakeRunner{
		release: make(chan struct{}),
		started: make(chan struct{}),
		result:  &domain.RunResult{RunID: "r", Source: domain.SourceSocial, Status: domain.RunStatusComplete},
	}
	svc := NewHarvestService(map[string]Runner{domain.SourceSocial: runner}, nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), domain.SourceSocial)
		done <- err
	}()
	<-runner.started

	_, err := svc.Run(context.Background(), domain.SourceSocial)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.True(t, svc.Status()[0].Running)

	close(runner.release)
	require.NoError(t, <-done)
	assert.False(t, svc.Status()[0].Running)
}

func TestHarvestService_PropagatesCriticalError(t *testing.T) {
	boom := errors.New("boom")
	res := &domain.RunResult{RunID: "r", Source: domain.SourceFeed, Status: domain.RunStatusFailed}
	store := &memRunStore{}
	svc := NewHarvestService(map[string]Runner{domain.SourceFeed: &fakeRunner{result: res, err: boom}}, store, nil, nil)

	got, err := svc.Run(context.Background(), domain.SourceFeed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Len(t, store.runs, 1, "failed runs are recorded too")
}

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Industry News</title>
  <item>
    <guid>n-1</guid>
    <title>Regulator opens enforcement action against lender</title>
    <link>%[1]s/a/1</link>
    <description>The SEC announced an enforcement action over disclosure failures.</description>
    <pubDate>%[2]s</pubDate>
  </item>
  <item>
    <guid>n-2</guid>
    <title>New study on payment adoption</title>
    <link>%[1]s/a/2</link>
    <description>A research survey finds growing adoption of instant payments.</description>
    <pubDate>%[2]s</pubDate>
  </item>
</channel>
</rss>`

func TestBuildOrchestrators_FeedRunEndToEnd(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rss" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprintf(w, feedTemplate, srv.URL, time.Now().UTC().Format(time.RFC1123Z))
	}))
	defer srv.Close()

	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "h.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Feeds: config.FeedsConfig{
			Enabled: true,
			Limit:   10,
			Feeds:   []config.QueryConfig{{Value: srv.URL + "/rss", Tier: 1}},
		},
	}
	research := repository.NewResearchRepository(db)
	orchs, err := BuildOrchestrators(Assembly{Config: cfg, Repo: research})
	require.NoError(t, err)
	require.Contains(t, orchs, domain.SourceFeed)
	assert.NotContains(t, orchs, domain.SourceSocial)

	runs := repository.NewRunRepository(db)
	svc := NewHarvestService(Runners(orchs), runs, nil, nil)

	res, err := svc.Run(context.Background(), domain.SourceFeed)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusComplete, res.Status)
	assert.Equal(t, 2, res.Statistics.Found)
	assert.Equal(t, 2, res.Statistics.Published)
	assert.Equal(t, 1, res.Statistics.Extra[domain.CounterRegulatoryFlagged])

	count, err := research.Count(context.Background(), domain.SourceFeed)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	saved, err := runs.GetByID(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusComplete, saved.Status)
}

type cannedModel struct{}

func (cannedModel) Complete(context.Context, string, int) (string, error) {
	return `{"category":"product","confidence":0.8,"severity":"low"}`, nil
}

func TestBuildOrchestrators_SocialStages(t *testing.T) {
	cfg := &config.Config{
		Social: config.SocialConfig{
			Enabled: true,
			BaseURL: "http://127.0.0.1:1",
			Stages:  []string{"theme", "claims"},
		},
	}
	orchs, err := BuildOrchestrators(Assembly{Config: cfg, Repo: repository.NewResearchRepository(nil), Model: cannedModel{}})
	require.NoError(t, err)
	assert.Contains(t, orchs, domain.SourceSocial)

	cfg.Social.Stages = []string{"sentiment"}
	_, err = BuildOrchestrators(Assembly{Config: cfg, Model: cannedModel{}})
	assert.Error(t, err)

	_, err = BuildOrchestrators(Assembly{Config: &config.Config{}})
	assert.Error(t, err, "no source enabled")
}

func TestBuildOrchestrators_RulesOverrideDefaults(t *testing.T) {
	cfg := &config.Config{Feeds: config.FeedsConfig{Enabled: true}}
	rules := &config.Rules{
		Compliance: []config.ComplianceRule{{Name: "bad", Expression: "title ==", Status: "warning"}},
	}
	_, err := BuildOrchestrators(Assembly{Config: cfg, Rules: rules})
	assert.Error(t, err, "invalid CEL expression is rejected at assembly")

	rules = &config.Rules{
		Patterns: []config.PatternGroup{{Category: "x", Patterns: []string{"("}}},
	}
	_, err = BuildOrchestrators(Assembly{Config: cfg, Rules: rules})
	assert.Error(t, err, "invalid regexp is rejected at assembly")
}

func TestPatternGroups_RuleSeverity(t *testing.T) {
	a := Assembly{Rules: &config.Rules{Patterns: []config.PatternGroup{
		{Category: domain.CategoryRegulatory, Severity: " HIGH ", Review: true, Patterns: []string{`\bconsent order\b`}},
		{Category: "other", Patterns: []string{`\bbank\b`}},
	}}}

	groups, err := a.patternGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, domain.SeverityHigh, groups[0].Severity)
	assert.Equal(t, domain.SeverityNone, groups[1].Severity)

	res := classifier.NewPatternClassifier(groups).Classify(context.Background(), "Bank signs a consent order", classifier.Context{})
	assert.Equal(t, domain.CategoryRegulatory, res.Category)
	assert.Equal(t, domain.SeverityHigh, res.Severity)

	a.Rules.Patterns[1].Severity = "severe"
	_, err = a.patternGroups()
	assert.ErrorContains(t, err, `unknown severity "severe"`)
}
