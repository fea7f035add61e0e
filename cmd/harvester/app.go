package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/timmy/harvester/internal/api/handler"
	"github.com/timmy/harvester/internal/config"
	"github.com/timmy/harvester/internal/logger"
	"github.com/timmy/harvester/internal/ratelimit"
	"github.com/timmy/harvester/internal/repository"
	"github.com/timmy/harvester/internal/service"
	"github.com/timmy/harvester/internal/storage"
)

// app holds everything both commands need.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	research *repository.ResearchRepository
	runs     *repository.RunRepository
	redis    *ratelimit.RedisCounter
	service  *service.HarvestService
}

// newApp bootstraps the app. logOut overrides where logs go; nil keeps the
// environment default.
func newApp(ctx context.Context, configPath string, logOut io.Writer) (*app, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	envCfg := logger.LoadFromEnv()
	if os.Getenv("LOG_LEVEL") == "" && cfg.Log.Level != "" {
		envCfg.Level = cfg.Log.Level
	}
	if os.Getenv("LOG_FORMAT") == "" && cfg.Log.Format != "" {
		envCfg.Format = cfg.Log.Format
	}
	envCfg.Output = logOut
	log := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(log)

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{
		cfg:      cfg,
		log:      log,
		research: repository.NewResearchRepository(db),
		runs:     repository.NewRunRepository(db),
	}

	var counter ratelimit.Counter
	if cfg.Redis.Enabled {
		a.redis = ratelimit.NewRedisCounter(ratelimit.RedisOptions{
			Address:     cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err := a.redis.Ping(ctx); err != nil {
			// Not fatal: the token bucket falls back to local counting per call.
			log.WithError(err).Warn("Redis unreachable at startup, rate counters will fall back to local")
		}
		counter = a.redis
	}

	rules, err := config.LoadRules(cfg.Compliance.RulesFile)
	if err != nil {
		return nil, err
	}

	orchs, err := service.BuildOrchestrators(service.Assembly{
		Config:  cfg,
		Rules:   rules,
		Repo:    a.research,
		Counter: counter,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	var archiver service.ReportArchiver
	if cfg.Storage.Enabled {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if s3store, ok := store.(*storage.S3Storage); ok {
			if err := s3store.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
		}
		archiver = storage.NewReportArchiver(store, cfg.Storage.Prefix)
	}

	a.service = service.NewHarvestService(service.Runners(orchs), a.runs, archiver, log)
	return a, nil
}

func (a *app) healthChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"database": a.research}
	if a.redis != nil {
		checks["redis"] = a.redis
	}
	return checks
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = logger.Sync()
}
