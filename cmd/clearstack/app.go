package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/clearstack/config"
	"github.com/d60-Lab/clearstack/internal/flagcache"
	"github.com/d60-Lab/clearstack/internal/outbox"
	"github.com/d60-Lab/clearstack/internal/prospect"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/internal/service"
	"github.com/d60-Lab/clearstack/pkg/database"
	"github.com/d60-Lab/clearstack/pkg/logger"
	"github.com/d60-Lab/clearstack/pkg/reporter"
	"github.com/d60-Lab/clearstack/pkg/tracing"
)

// app holds everything a command needs, wired from one Config.
type app struct {
	cfg        *config.Config
	db         *gorm.DB
	rdb        *redis.Client
	flags      *service.FeatureFlagService
	dispatcher *service.Dispatcher
	scheduler  *service.Scheduler

	// hooks is what business handlers call once their own write has committed
	hooks       *service.Hooks
	hookRunner  *service.HookRunner
	integration *service.IntegrationService

	shutdownTracing func(context.Context) error
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if err := reporter.Init(cfg.Sentry.DSN, cfg.Sentry.Environment); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	shutdown, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, shutdownTracing: shutdown}

	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, flag cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = a.rdb.Close()
			a.rdb = nil
		}
	}

	events := repository.NewEventRepository(db)
	settings := repository.NewSettingRepository(db)
	domain := repository.NewDomainRepository(db)

	a.flags = service.NewFeatureFlagService(repository.NewFlagRepository(db), flagcache.New(a.rdb, cfg.Redis.FlagTTL))
	publisher := service.NewPublisher(events)
	sink := prospect.NewClient(cfg.Prospect)

	a.dispatcher = service.NewDispatcher(events, sink, service.WithPolicy(outbox.Policy{MaxRetries: cfg.Outbox.MaxRetries}))
	a.scheduler, err = service.NewScheduler(a.dispatcher, service.SchedulerConfig{
		DispatchSpec: cfg.Outbox.DispatchSchedule,
		CleanupSpec:  cfg.Outbox.CleanupSchedule,
		BatchSize:    cfg.Outbox.BatchSize,
		Retention:    cfg.Outbox.Retention,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.hookRunner = service.NewHookRunner(cfg.Outbox.HookQueueSize, cfg.Outbox.HookTimeout)
	a.hooks = service.NewHooks(service.NewProducers(domain, settings, a.flags, publisher), a.hookRunner)
	a.integration = service.NewIntegrationService(events, settings, domain, a.flags, publisher, sink, a.scheduler, cfg.Anonymize.Salt)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if err := database.Close(a.db); err != nil {
		logger.Warn("close database", zap.Error(err))
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
	reporter.Flush(2 * time.Second)
	_ = logger.Sync()
}
