package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Storage    StorageConfig    `mapstructure:"storage"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Social     SocialConfig     `mapstructure:"social"`
	Feeds      FeedsConfig      `mapstructure:"feeds"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type StorageConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Type         string `mapstructure:"type"` // s3 (any S3-compatible endpoint)
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	Prefix       string `mapstructure:"prefix"` // key prefix for run reports
}

type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  uint64        `mapstructure:"max_retries"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

type RateLimitConfig struct {
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	HourlyQuota       int           `mapstructure:"hourly_quota"`
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout"`
}

type PipelineConfig struct {
	RunTimeout          time.Duration `mapstructure:"run_timeout"`
	RetryWindow         time.Duration `mapstructure:"retry_window"`
	HarvestConcurrency  int           `mapstructure:"harvest_concurrency"`
	ClassifyConcurrency int           `mapstructure:"classify_concurrency"`
	PublishConcurrency  int           `mapstructure:"publish_concurrency"`
	MaxTags             int           `mapstructure:"max_tags"`
	MaxContent          int           `mapstructure:"max_content"`
}

type ScoringConfig struct {
	Keywords       map[string]float64 `mapstructure:"keywords"`
	FallbackBase   float64            `mapstructure:"fallback_base"`
	TierOneBoost   float64            `mapstructure:"tier_one_boost"`
	RegulatoryHigh float64            `mapstructure:"regulatory_high_boost"`
	RecentBoost    float64            `mapstructure:"recent_boost"`
	RecencyWindow  time.Duration      `mapstructure:"recency_window"`
}

type ComplianceConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	_ = v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("social.token", "SOCIAL_API_TOKEN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Social.ResolveEnvVars()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/harvester.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 500*time.Millisecond)

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "harvester-reports")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.use_path_style", true)
	v.SetDefault("storage.prefix", "runs")

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.max_tokens", 400)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("social.enabled", true)
	v.SetDefault("social.timeout", 30*time.Second)
	v.SetDefault("social.hours_back", 24)
	v.SetDefault("social.limit", 50)
	v.SetDefault("social.stages", []string{"theme", "claims"})
	v.SetDefault("social.hourly_quota", 450)

	v.SetDefault("feeds.enabled", true)
	v.SetDefault("feeds.timeout", 20*time.Second)
	v.SetDefault("feeds.hours_back", 72)
	v.SetDefault("feeds.limit", 100)
	v.SetDefault("feeds.fetch_full_text", false)

	v.SetDefault("ratelimit.requests_per_minute", 60)
	v.SetDefault("ratelimit.hourly_quota", 0)
	v.SetDefault("ratelimit.base_backoff", 2*time.Second)
	v.SetDefault("ratelimit.max_backoff", 15*time.Minute)
	v.SetDefault("ratelimit.acquire_timeout", 30*time.Second)

	v.SetDefault("pipeline.run_timeout", 30*time.Minute)
	v.SetDefault("pipeline.retry_window", time.Hour)
	v.SetDefault("pipeline.harvest_concurrency", 5)
	v.SetDefault("pipeline.classify_concurrency", 4)
	v.SetDefault("pipeline.publish_concurrency", 4)
	v.SetDefault("pipeline.max_tags", 10)
	v.SetDefault("pipeline.max_content", 10000)

	v.SetDefault("scoring.fallback_base", 0.0)
	v.SetDefault("scoring.tier_one_boost", 0.5)
	v.SetDefault("scoring.regulatory_high_boost", 2.0)
	v.SetDefault("scoring.recent_boost", 0.5)
	v.SetDefault("scoring.recency_window", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks cross-field constraints after unmarshalling.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Storage.Enabled && c.Storage.Type != "s3" {
		return fmt.Errorf("storage: unsupported type %q", c.Storage.Type)
	}
	if c.RateLimit.MaxBackoff < c.RateLimit.BaseBackoff {
		return fmt.Errorf("ratelimit: max_backoff (%s) is below base_backoff (%s)",
			c.RateLimit.MaxBackoff, c.RateLimit.BaseBackoff)
	}
	if err := c.Social.Validate(); err != nil {
		return err
	}
	return c.Feeds.Validate()
}
