package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/clearstack/internal/model"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 每个连接都是独立的内存库
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.OutboundEvent{}, &model.CompanyIntegrationSetting{}, &model.FeatureFlag{},
		&model.User{}, &model.Software{}, &model.Review{}, &model.PurchaseRequest{},
		&model.SoftwareUsage{}, &model.Contract{},
	))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(company string, status model.EventStatus, createdAt, nextAt time.Time) *model.OutboundEvent {
	return &model.OutboundEvent{
		ID:            uuid.New().String(),
		CompanyID:     company,
		Type:          model.EventReviewCreated,
		Payload:       datatypes.JSON(`{"k":1}`),
		Status:        status,
		NextAttemptAt: nextAt,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestFindDueOrderingAndLimit(t *testing.T) {
	db := setupDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	var ids []string
	for i := 5; i >= 1; i-- {
		e := newEvent("c1", model.EventStatusPending, base.Add(time.Duration(i)*time.Minute), base)
		require.NoError(t, repo.Create(ctx, e))
		ids = append([]string{e.ID}, ids...)
	}
	require.NoError(t, repo.Create(ctx, newEvent("c1", model.EventStatusPending, base, base.Add(time.Hour))))
	require.NoError(t, repo.Create(ctx, newEvent("c2", model.EventStatusSent, base, base)))
	require.NoError(t, repo.Create(ctx, newEvent("c2", model.EventStatusFailed, base, base)))

	due, err := repo.FindDue(ctx, base.Add(time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, due, 3)
	for i, e := range due {
		assert.Equal(t, ids[i], e.ID)
	}

	all, err := repo.FindDue(ctx, base.Add(time.Minute), 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	db := setupDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	e := newEvent("c1", model.EventStatusPending, base, base)
	e.Type = model.EventType("NOPE")
	assert.ErrorIs(t, repo.Create(ctx, e), ErrInvalidEventType)
	_, err := repo.GetByID(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusGuardsTerminal(t *testing.T) {
	db := setupDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	e := newEvent("c1", model.EventStatusPending, base, base)
	require.NoError(t, repo.Create(ctx, e))

	require.NoError(t, repo.UpdateStatus(ctx, e.ID, EventUpdate{Status: model.EventStatusSent, TryCount: 1, NextAttemptAt: base, UpdatedAt: base}))
	err := repo.UpdateStatus(ctx, e.ID, EventUpdate{Status: model.EventStatusFailed, TryCount: 2, NextAttemptAt: base, UpdatedAt: base})
	assert.ErrorIs(t, err, ErrEventNotPending)

	got, err := repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusSent, got.Status)
	assert.Equal(t, 1, got.TryCount)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCountByStatusIsTenantScoped(t *testing.T) {
	db := setupDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	for _, s := range []model.EventStatus{model.EventStatusPending, model.EventStatusPending, model.EventStatusSent} {
		require.NoError(t, repo.Create(ctx, newEvent("c1", s, base, base)))
	}
	require.NoError(t, repo.Create(ctx, newEvent("c2", model.EventStatusFailed, base, base)))

	c1, err := repo.CountByStatus(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c1[model.EventStatusPending])
	assert.Equal(t, int64(1), c1[model.EventStatusSent])
	assert.Equal(t, int64(0), c1[model.EventStatusFailed])

	recent, err := repo.ListRecent(ctx, "c2", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "c2", recent[0].CompanyID)
}

func TestDeleteSentOlderThan(t *testing.T) {
	db := setupDB(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	old := base.Add(-40 * 24 * time.Hour)
	oldSent := newEvent("c1", model.EventStatusSent, old, old)
	oldPending := newEvent("c1", model.EventStatusPending, old, old)
	oldFailed := newEvent("c1", model.EventStatusFailed, old, old)
	freshSent := newEvent("c1", model.EventStatusSent, base, base)
	for _, e := range []*model.OutboundEvent{oldSent, oldPending, oldFailed, freshSent} {
		require.NoError(t, repo.Create(ctx, e))
	}

	n, err := repo.DeleteSentOlderThan(ctx, base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetByID(ctx, oldSent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, e := range []*model.OutboundEvent{oldPending, oldFailed, freshSent} {
		_, err := repo.GetByID(ctx, e.ID)
		assert.NoError(t, err)
	}
}

func TestSettingsLazyDefaults(t *testing.T) {
	db := setupDB(t)
	repo := NewSettingRepository(db)
	ctx := context.Background()

	s, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, s.ProspectEnabled)
	assert.False(t, s.Anonymize)

	on := true
	s, err = repo.Update(ctx, "c1", SettingPatch{ProspectEnabled: &on})
	require.NoError(t, err)
	assert.True(t, s.ProspectEnabled)
	assert.False(t, s.Anonymize)

	require.NoError(t, repo.TouchSync(ctx, "c1", base))
	s, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, s.ProspectEnabled)
	require.NotNil(t, s.LastSyncAt)
	assert.True(t, base.Equal(*s.LastSyncAt))

	var cnt int64
	db.Model(&model.CompanyIntegrationSetting{}).Count(&cnt)
	assert.Equal(t, int64(1), cnt)
}

func TestGlobalFlagKeyIsUnique(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	company := "c1"

	require.NoError(t, db.WithContext(ctx).Create(&model.FeatureFlag{ID: uuid.New().String(), Key: "referrals"}).Error)
	err := db.WithContext(ctx).Create(&model.FeatureFlag{ID: uuid.New().String(), Key: "referrals"}).Error
	assert.Error(t, err)

	require.NoError(t, db.WithContext(ctx).Create(&model.FeatureFlag{ID: uuid.New().String(), Key: "referrals", CompanyID: &company}).Error)

	repo := NewFlagRepository(db)
	created, err := repo.CreateIfMissing(ctx, &model.FeatureFlag{Key: "referrals"})
	require.NoError(t, err)
	assert.False(t, created)

	var cnt int64
	require.NoError(t, db.Model(&model.FeatureFlag{}).Where("key = ? AND company_id IS NULL", "referrals").Count(&cnt).Error)
	assert.Equal(t, int64(1), cnt)
}

func TestFlagRepositoryScopes(t *testing.T) {
	db := setupDB(t)
	repo := NewFlagRepository(db)
	ctx := context.Background()
	company := "c1"

	created, err := repo.CreateIfMissing(ctx, &model.FeatureFlag{Key: "referrals", Enabled: true})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateIfMissing(ctx, &model.FeatureFlag{Key: "referrals", Enabled: false})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = repo.Find(ctx, "referrals", &company)
	assert.ErrorIs(t, err, ErrNotFound)

	f, err := repo.Upsert(ctx, "referrals", &company, false)
	require.NoError(t, err)
	assert.False(t, f.Enabled)
	f, err = repo.Upsert(ctx, "referrals", &company, true)
	require.NoError(t, err)
	assert.True(t, f.Enabled)

	global, err := repo.Find(ctx, "referrals", nil)
	require.NoError(t, err)
	assert.True(t, global.IsGlobal())

	rows, err := repo.ListByCompany(ctx, company)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDomainLoaders(t *testing.T) {
	db := setupDB(t)
	repo := NewDomainRepository(db)
	ctx := context.Background()

	u := model.User{ID: "u1", CompanyID: "c1", Email: "jean@example.com", FirstName: "Jean"}
	sw := model.Software{ID: "s1", CompanyID: "c1", Name: "Slack", Category: "chat"}
	require.NoError(t, db.Create(&u).Error)
	require.NoError(t, db.Create(&sw).Error)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&model.Review{
			ID: fmt.Sprintf("r%d", i), CompanyID: "c1", SoftwareID: "s1", UserID: "u1", Rating: 4,
			Tags: datatypes.JSONSlice[string]{"fast"}, CreatedAt: base.Add(-time.Duration(i) * 24 * time.Hour),
		}).Error)
	}

	r, err := repo.GetReview(ctx, "r0")
	require.NoError(t, err)
	assert.Equal(t, "jean@example.com", r.User.Email)
	assert.Equal(t, []string{"fast"}, []string(r.Tags))

	recent, err := repo.ListReviewsSince(ctx, "c1", base.Add(-36*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	_, err = repo.GetContract(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
