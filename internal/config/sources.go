package config

import (
	"fmt"
	"os"
	"time"
)

// QueryConfig is one discovery query as written in the config file.
type QueryConfig struct {
	Value      string `mapstructure:"value"`
	Kind       string `mapstructure:"kind"` // hashtag, account, feed
	Competitor string `mapstructure:"competitor"`
	Tier       int    `mapstructure:"tier"`
}

// SocialConfig configures the social platform source variant.
type SocialConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BaseURL     string        `mapstructure:"base_url"`
	Token       string        `mapstructure:"token"`
	TokenEnv    string        `mapstructure:"token_env"` // Environment variable name for the token
	Timeout     time.Duration `mapstructure:"timeout"`
	HourlyQuota int           `mapstructure:"hourly_quota"`
	HoursBack   int           `mapstructure:"hours_back"`
	Limit       int           `mapstructure:"limit"`
	Queries     []QueryConfig `mapstructure:"queries"`
	Stages      []string      `mapstructure:"stages"` // model classifier stages, in order: theme, claims
}

// ResolveEnvVars loads the token from TokenEnv when it is not set directly.
func (c *SocialConfig) ResolveEnvVars() {
	if c.TokenEnv != "" && c.Token == "" {
		if val := os.Getenv(c.TokenEnv); val != "" {
			c.Token = val
		}
	}
}

// Validate checks the social source configuration.
func (c *SocialConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BaseURL == "" {
		return fmt.Errorf("social: base_url is required")
	}
	if len(c.Stages) > 2 {
		return fmt.Errorf("social: at most 2 classifier stages, got %d", len(c.Stages))
	}
	for _, s := range c.Stages {
		switch s {
		case "theme", "claims":
		default:
			return fmt.Errorf("social: unknown classifier stage %q", s)
		}
	}
	for i, q := range c.Queries {
		if q.Value == "" {
			return fmt.Errorf("social: query %d has no value", i)
		}
		switch q.Kind {
		case "", "hashtag", "account":
		default:
			return fmt.Errorf("social: query %q has unknown kind %q", q.Value, q.Kind)
		}
	}
	return nil
}

// FeedsConfig configures the RSS/Atom source variant.
type FeedsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HoursBack     int           `mapstructure:"hours_back"`
	Limit         int           `mapstructure:"limit"`
	FetchFullText bool          `mapstructure:"fetch_full_text"`
	Feeds         []QueryConfig `mapstructure:"feeds"`
}

// Validate checks the feed source configuration.
func (c *FeedsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	for i, f := range c.Feeds {
		if f.Value == "" {
			return fmt.Errorf("feeds: feed %d has no url", i)
		}
	}
	return nil
}
