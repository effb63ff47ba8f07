package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/repository"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Company{}, &model.User{}, &model.Software{}, &model.SoftwareUsage{},
		&model.Review{}, &model.PurchaseRequest{}, &model.Contract{},
		&model.OutboundEvent{}, &model.CompanyIntegrationSetting{}, &model.FeatureFlag{},
	))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

type sinkCall struct {
	Type    model.EventType
	Payload []byte
}

type fakeSink struct {
	mu    sync.Mutex
	err   error
	calls []sinkCall
}

func (s *fakeSink) Post(_ context.Context, t model.EventType, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{Type: t, Payload: append([]byte(nil), payload...)})
	return s.err
}

func (s *fakeSink) Calls() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

var errSinkDown = errors.New("sink down")

// env bundles the real gorm-backed components used by most tests.
type env struct {
	db         *gorm.DB
	clk        *clock
	events     repository.EventRepository
	settings   repository.SettingRepository
	flagsRepo  repository.FlagRepository
	domain     repository.DomainRepository
	flags      *FeatureFlagService
	publisher  *Publisher
	producers  *Producers
	sink       *fakeSink
	dispatcher *Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := setupDB(t)
	e := &env{db: db, clk: newClock(), sink: &fakeSink{}}
	e.events = repository.NewEventRepository(db)
	e.settings = repository.NewSettingRepository(db)
	e.flagsRepo = repository.NewFlagRepository(db)
	e.domain = repository.NewDomainRepository(db)
	e.flags = NewFeatureFlagService(e.flagsRepo, nil)
	e.publisher = NewPublisher(e.events)
	e.publisher.now = e.clk.Now
	e.producers = NewProducers(e.domain, e.settings, e.flags, e.publisher)
	e.producers.now = e.clk.Now
	e.dispatcher = NewDispatcher(e.events, e.sink, WithClock(e.clk.Now))

	_, err := e.flags.InitializeFlags(context.Background(), nil)
	require.NoError(t, err)
	return e
}

func (e *env) enableProspect(t *testing.T, companyID string, anon bool) {
	t.Helper()
	on := true
	_, err := e.settings.Update(context.Background(), companyID, repository.SettingPatch{ProspectEnabled: &on, Anonymize: &anon})
	require.NoError(t, err)
}

func (e *env) seedReview(t *testing.T, companyID, reviewID string) {
	t.Helper()
	u := model.User{ID: "u-" + reviewID, CompanyID: companyID, Email: reviewID + ".Jean@Example.com", FirstName: "Jean", LastName: "Dupont"}
	require.NoError(t, e.db.Create(&u).Error)
	require.NoError(t, e.db.Create(&model.Review{
		ID: reviewID, CompanyID: companyID, SoftwareID: "s1", UserID: u.ID, Rating: 4,
		Tags: []string{"fast", "cheap"}, Improvement: "dark mode", CreatedAt: e.clk.Now(),
	}).Error)
}

func (e *env) pending(t *testing.T, companyID string) []*model.OutboundEvent {
	t.Helper()
	var out []*model.OutboundEvent
	require.NoError(t, e.db.Where("company_id = ?", companyID).Order("created_at").Find(&out).Error)
	return out
}
