package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/pkg/logger"
)

// OutboxRunner is the work the scheduler triggers.
type OutboxRunner interface {
	PublishPending(ctx context.Context, limit int) Result
	CleanupSent(ctx context.Context, retention time.Duration) (int64, error)
}

type SchedulerConfig struct {
	DispatchSpec string
	CleanupSpec  string
	BatchSize    int
	Retention    time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		DispatchSpec: "@every 10m",
		CleanupSpec:  "0 3 * * *",
		BatchSize:    50,
		Retention:    30 * 24 * time.Hour,
	}
}

// SchedulerStatus is the single-flight status shown to administrators.
type SchedulerStatus struct {
	IsRunning   bool   `json:"is_running"`
	NextRun     string `json:"next_run"`
	NextCleanup string `json:"next_cleanup"`
}

// Scheduler owns the periodic dispatch and cleanup triggers. Only one dispatch
// run is active at a time; scheduled firings that overlap are skipped and
// manual triggers are rejected with ErrDispatchRunning.
type Scheduler struct {
	runner   OutboxRunner
	cfg      SchedulerConfig
	cron     *cron.Cron
	dispatch cron.Schedule
	cleanup  cron.Schedule
	running  atomic.Bool
	started  atomic.Bool
	now      func() time.Time
}

func NewScheduler(runner OutboxRunner, cfg SchedulerConfig) (*Scheduler, error) {
	def := DefaultSchedulerConfig()
	if cfg.DispatchSpec == "" {
		cfg.DispatchSpec = def.DispatchSpec
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = def.CleanupSpec
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}

	dispatch, err := cron.ParseStandard(cfg.DispatchSpec)
	if err != nil {
		return nil, fmt.Errorf("parse dispatch schedule %q: %w", cfg.DispatchSpec, err)
	}
	cleanup, err := cron.ParseStandard(cfg.CleanupSpec)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", cfg.CleanupSpec, err)
	}

	for _, sch := range []cron.Schedule{dispatch, cleanup} {
		if spec, ok := sch.(*cron.SpecSchedule); ok {
			spec.Location = time.UTC
		}
	}

	s := &Scheduler{
		runner:   runner,
		cfg:      cfg,
		dispatch: dispatch,
		cleanup:  cleanup,
		now:      time.Now,
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	s.cron.Schedule(dispatch, cron.FuncJob(func() { s.RunScheduled(context.Background()) }))
	s.cron.Schedule(cleanup, cron.FuncJob(func() { s.RunCleanup(context.Background()) }))
	return s, nil
}

// Start begins firing triggers in the background.
func (s *Scheduler) Start() {
	if s.started.CompareAndSwap(false, true) {
		s.cron.Start()
		logger.Info("outbox scheduler started",
			zap.String("dispatch", s.cfg.DispatchSpec),
			zap.String("cleanup", s.cfg.CleanupSpec))
	}
}

// Stop prevents new firings and waits for running jobs, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("outbox scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunScheduled is the periodic dispatch duty. An overlapping firing is skipped.
func (s *Scheduler) RunScheduled(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		logger.Warn("outbox dispatch still running, skip scheduled run")
		return
	}
	defer s.running.Store(false)

	res, err := s.safeDispatch(ctx, s.cfg.BatchSize)
	if err != nil {
		logger.Error("scheduled outbox dispatch aborted", zap.Error(err))
		return
	}
	if res.Sent > 0 || res.Failed > 0 || len(res.Errors) > 0 {
		logger.Info("scheduled outbox dispatch",
			zap.Int("sent", res.Sent), zap.Int("failed", res.Failed), zap.Int("errors", len(res.Errors)))
	}
}

// TriggerDispatch runs a manual dispatch of up to limit events.
func (s *Scheduler) TriggerDispatch(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 || limit > s.cfg.BatchSize {
		limit = s.cfg.BatchSize
	}
	if !s.running.CompareAndSwap(false, true) {
		return Result{}, ErrDispatchRunning
	}
	defer s.running.Store(false)
	return s.safeDispatch(ctx, limit)
}

func (s *Scheduler) safeDispatch(ctx context.Context, limit int) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox dispatch panic: %v", r)
		}
	}()
	return s.runner.PublishPending(ctx, limit), nil
}

// RunCleanup is the daily retention duty.
func (s *Scheduler) RunCleanup(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("outbox cleanup panicked", zap.Any("panic", r))
		}
	}()
	if _, err := s.runner.CleanupSent(ctx, s.cfg.Retention); err != nil {
		logger.Error("outbox cleanup failed", zap.Error(err))
	}
}

func (s *Scheduler) IsRunning() bool { return s.running.Load() }

func (s *Scheduler) Status() SchedulerStatus {
	now := s.now()
	return SchedulerStatus{
		IsRunning:   s.IsRunning(),
		NextRun:     describe(s.cfg.DispatchSpec, s.dispatch.Next(now)),
		NextCleanup: describe(s.cfg.CleanupSpec, s.cleanup.Next(now)),
	}
}

func describe(spec string, next time.Time) string {
	what := fmt.Sprintf("cron %q", spec)
	if d, ok := strings.CutPrefix(spec, "@every "); ok {
		if dur, err := time.ParseDuration(strings.TrimSpace(d)); err == nil {
			what = "every " + dur.String()
		}
	}
	if next.IsZero() {
		return what
	}
	return fmt.Sprintf("%s, next at %s", what, next.UTC().Format(time.RFC3339))
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.L().Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
