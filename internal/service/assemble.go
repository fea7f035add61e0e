package service

import (
	"fmt"
	"strings"

	"github.com/timmy/harvester/internal/classifier"
	"github.com/timmy/harvester/internal/compliance"
	"github.com/timmy/harvester/internal/config"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/harvester"
	"github.com/timmy/harvester/internal/llm"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/pipeline"
	"github.com/timmy/harvester/internal/prompts"
	"github.com/timmy/harvester/internal/publish"
	"github.com/timmy/harvester/internal/ratelimit"
	"github.com/timmy/harvester/internal/scanner"
	"github.com/timmy/harvester/internal/scoring"
	"github.com/timmy/harvester/internal/source"
	"github.com/timmy/harvester/internal/source/feed"
	"github.com/timmy/harvester/internal/source/social"
	"github.com/timmy/harvester/internal/transform"
)

// Assembly holds the collaborators shared by every source variant.
type Assembly struct {
	Config  *config.Config
	Rules   *config.Rules
	Repo    publish.Repository
	Counter ratelimit.Counter // shared rate counter; nil counts locally
	Model   llm.Model         // overrides the configured LLM client when set
	Logger  *logger.Logger
}

// BuildOrchestrators creates one orchestrator per enabled source variant.
func BuildOrchestrators(a Assembly) (map[string]*pipeline.Orchestrator, error) {
	shared, err := a.sharedStages()
	if err != nil {
		return nil, err
	}

	out := make(map[string]*pipeline.Orchestrator)
	if a.Config.Social.Enabled {
		o, err := a.socialOrchestrator(shared)
		if err != nil {
			return nil, err
		}
		out[domain.SourceSocial] = o
	}
	if a.Config.Feeds.Enabled {
		o, err := a.feedOrchestrator(shared)
		if err != nil {
			return nil, err
		}
		out[domain.SourceFeed] = o
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no source enabled")
	}
	return out, nil
}

// sharedStages holds the validate, score and publish adapters, which are the
// same for every source.
type sharedStages struct {
	validator *compliance.Validator
	scorer    *scoring.Scorer
	publisher *publish.Publisher
}

func (a Assembly) sharedStages() (*sharedStages, error) {
	rules := compliance.DefaultRules()
	if a.Rules != nil && len(a.Rules.Compliance) > 0 {
		rules = make([]compliance.Rule, 0, len(a.Rules.Compliance))
		for _, r := range a.Rules.Compliance {
			rules = append(rules, compliance.Rule{
				Name:       r.Name,
				Expression: r.Expression,
				Status:     domain.ComplianceStatus(strings.ToUpper(r.Status)),
				Message:    r.Message,
			})
		}
	}
	checker, err := compliance.NewRuleChecker(rules, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("compliance rules: %w", err)
	}

	sc := a.Config.Scoring
	boosts := scoring.DefaultBoosts()
	boosts.TierOne = sc.TierOneBoost
	boosts.RegulatoryHigh = sc.RegulatoryHigh
	boosts.Recent = sc.RecentBoost
	boosts.FallbackBase = sc.FallbackBase
	if sc.RecencyWindow > 0 {
		boosts.RecencyWindow = sc.RecencyWindow
	}

	return &sharedStages{
		validator: compliance.NewValidator(checker, a.Logger),
		scorer:    scoring.NewScorer(scoring.NewKeywordScorer(sc.Keywords, a.Logger), boosts, a.Logger),
		publisher: publish.New(a.Repo, a.Config.Pipeline.PublishConcurrency, a.Logger),
	}, nil
}

func (a Assembly) governors(sourceID string, hourly int) []ratelimit.Governor {
	rl := a.Config.RateLimit
	var govs []ratelimit.Governor
	if hourly > 0 {
		govs = append(govs, ratelimit.NewHourlyQuota(hourly, ratelimit.NewBackoff(rl.BaseBackoff, rl.MaxBackoff, nil), nil))
	}
	if rl.RequestsPerMinute > 0 {
		govs = append(govs, ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
			Source:            sourceID,
			RequestsPerMinute: rl.RequestsPerMinute,
			BaseBackoff:       rl.BaseBackoff,
			MaxBackoff:        rl.MaxBackoff,
		}, a.Counter, nil, a.Logger))
	}
	return govs
}

func (a Assembly) socialOrchestrator(shared *sharedStages) (*pipeline.Orchestrator, error) {
	cfg := a.Config.Social
	client := social.NewClient(social.Config{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		Timeout:        cfg.Timeout,
		AcquireTimeout: a.Config.RateLimit.AcquireTimeout,
	}, a.governors(domain.SourceSocial, cfg.HourlyQuota)...)

	var stages []classifier.Classifier
	if model := a.model(); model != nil {
		for _, name := range cfg.Stages {
			switch name {
			case classifier.StageTheme:
				stages = append(stages, classifier.NewThemeClassifier(model, a.Config.LLM.MaxTokens, a.Logger))
			case classifier.StageClaims:
				stages = append(stages, classifier.NewClaimsClassifier(model, a.Config.LLM.MaxTokens, a.Logger))
			default:
				return nil, fmt.Errorf("social: unknown classifier stage %q", name)
			}
		}
	}

	return a.orchestrator(domain.SourceSocial, client, cfg.Queries, source.QueryHashtag, cfg.HoursBack, cfg.Limit, stages, shared)
}

func (a Assembly) feedOrchestrator(shared *sharedStages) (*pipeline.Orchestrator, error) {
	cfg := a.Config.Feeds
	client := feed.NewClient(feed.Config{
		Timeout:        cfg.Timeout,
		AcquireTimeout: a.Config.RateLimit.AcquireTimeout,
		FetchFullText:  cfg.FetchFullText,
	}, a.Logger, a.governors(domain.SourceFeed, 0)...)

	groups, err := a.patternGroups()
	if err != nil {
		return nil, err
	}
	stages := []classifier.Classifier{classifier.NewPatternClassifier(groups)}

	return a.orchestrator(domain.SourceFeed, client, cfg.Feeds, source.QueryFeed, cfg.HoursBack, cfg.Limit, stages, shared)
}

// patternGroups compiles the rule file's pattern groups, or returns the
// built-in groups when the file has none.
func (a Assembly) patternGroups() ([]classifier.PatternGroup, error) {
	if a.Rules == nil || len(a.Rules.Patterns) == 0 {
		return classifier.DefaultPatternGroups(), nil
	}
	groups := make([]classifier.PatternGroup, 0, len(a.Rules.Patterns))
	for _, g := range a.Rules.Patterns {
		severity, err := ruleSeverity(g.Severity)
		if err != nil {
			return nil, fmt.Errorf("pattern group %s: %w", g.Category, err)
		}
		pg, err := classifier.NewPatternGroup(g.Category, severity, g.Review, g.Patterns...)
		if err != nil {
			return nil, fmt.Errorf("pattern group %s: %w", g.Category, err)
		}
		groups = append(groups, pg)
	}
	return groups, nil
}

// ruleSeverity parses a rule file severity. Empty means none; an unknown
// value is an error rather than a silent downgrade.
func ruleSeverity(s string) (domain.Severity, error) {
	sev := domain.ParseSeverity(s)
	if sev == domain.SeverityNone {
		if v := strings.ToLower(strings.TrimSpace(s)); v != "" && v != string(domain.SeverityNone) {
			return "", fmt.Errorf("unknown severity %q", s)
		}
	}
	return sev, nil
}

func (a Assembly) orchestrator(
	sourceID string,
	client source.Client,
	queries []config.QueryConfig,
	defaultKind string,
	hoursBack, limit int,
	stages []classifier.Classifier,
	shared *sharedStages,
) (*pipeline.Orchestrator, error) {
	p := a.Config.Pipeline
	opts := transform.DefaultOptions()
	if p.MaxTags > 0 {
		opts.MaxTags = p.MaxTags
	}
	if p.MaxContent > 0 {
		opts.MaxContent = p.MaxContent
	}

	return pipeline.New(pipeline.Deps{
		Source:  sourceID,
		Scanner: scanner.New(client, a.Logger),
		ScanConfig: scanner.Config{
			Queries:   toQueries(queries, defaultKind),
			HoursBack: hoursBack,
			Limit:     limit,
		},
		Harvester:           harvester.New(client, harvester.Config{Concurrency: p.HarvestConcurrency}, a.Logger),
		Classifiers:         stages,
		Transformer:         transform.New(opts, a.Logger),
		Validator:           shared.validator,
		Scorer:              shared.scorer,
		Publisher:           shared.publisher,
		Calls:               client,
		ClassifyConcurrency: p.ClassifyConcurrency,
		RunTimeout:          p.RunTimeout,
		RetryWindow:         p.RetryWindow,
		Logger:              a.Logger,
	})
}

func (a Assembly) model() llm.Model {
	if a.Model != nil {
		return a.Model
	}
	c := a.Config.LLM
	if !c.Enabled || c.APIKey == "" {
		return nil
	}
	return llm.NewClient(llm.Config{
		Model:        c.Model,
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		SystemPrompt: prompts.ClassifierSystemPrompt,
		Temperature:  c.Temperature,
		Timeout:      c.Timeout,
		MaxRetries:   c.MaxRetries,
	})
}

func toQueries(in []config.QueryConfig, defaultKind string) []source.Query {
	out := make([]source.Query, 0, len(in))
	for _, q := range in {
		kind := q.Kind
		if kind == "" {
			kind = defaultKind
		}
		out = append(out, source.Query{
			Value:      q.Value,
			Kind:       kind,
			Competitor: q.Competitor,
			Tier:       q.Tier,
		})
	}
	return out
}
