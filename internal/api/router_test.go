package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/clearstack/internal/api/handler"
	"github.com/d60-Lab/clearstack/internal/api/middleware"
	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/internal/service"
)

const jwtSecret = "router-test"

type fakeIntegration struct {
	dispatchErr error
	exportErr   error
	testErr     error
	lastLimit   int
	lastDays    int
	lastCompany string
	lastPatch   repository.SettingPatch
}

func (f *fakeIntegration) Stats(_ context.Context, companyID string) (*service.OutboxStats, error) {
	f.lastCompany = companyID
	return &service.OutboxStats{Pending: 2, Sent: 3, Total: 5, Recent: []*model.OutboundEvent{}}, nil
}

func (f *fakeIntegration) Dispatch(_ context.Context, limit int) (service.Result, error) {
	f.lastLimit = limit
	if f.dispatchErr != nil {
		return service.Result{}, f.dispatchErr
	}
	return service.Result{Sent: 1, Errors: []string{}}, nil
}

func (f *fakeIntegration) SchedulerStatus() service.SchedulerStatus {
	return service.SchedulerStatus{NextRun: "every 10m0s"}
}

func (f *fakeIntegration) GetSettings(_ context.Context, companyID string) (*model.CompanyIntegrationSetting, error) {
	return &model.CompanyIntegrationSetting{CompanyID: companyID}, nil
}

func (f *fakeIntegration) UpdateSettings(_ context.Context, companyID string, patch repository.SettingPatch) (*model.CompanyIntegrationSetting, error) {
	f.lastPatch = patch
	st := &model.CompanyIntegrationSetting{CompanyID: companyID}
	if patch.ProspectEnabled != nil {
		st.ProspectEnabled = *patch.ProspectEnabled
	}
	return st, nil
}

func (f *fakeIntegration) SendTestEvent(_ context.Context, _ string, _ string) error { return f.testErr }

func (f *fakeIntegration) Export(_ context.Context, _ string, days int) (*service.ExportResult, error) {
	f.lastDays = days
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &service.ExportResult{Reviews: 2, Total: 2}, nil
}

type testServer struct {
	engine      *gin.Engine
	integration *fakeIntegration
	flags       *service.FeatureFlagService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.FeatureFlag{}))

	flags := service.NewFeatureFlagService(repository.NewFlagRepository(db), nil)
	_, err = flags.InitializeFlags(context.Background(), nil)
	require.NoError(t, err)

	integ := &fakeIntegration{}
	r := NewRouter(RouterConfig{JWTSecret: jwtSecret, ServiceName: "clearstack-test"}, handler.New(integ, flags))
	return &testServer{engine: r, integration: integ, flags: flags}
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := middleware.Sign(jwtSecret, middleware.Claims{CompanyID: "c1", Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, role string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/api/v1/admin/outbox/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = s.do(t, http.MethodGet, "/api/v1/admin/outbox/stats", "member", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestOutboxStats(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/admin/outbox/stats", middleware.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "c1", s.integration.lastCompany)

	var st service.OutboxStats
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, int64(5), st.Total)
}

func TestDispatchOutbox(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/admin/outbox/dispatch", middleware.RoleAdmin, map[string]int{"limit": 7})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 7, s.integration.lastLimit)

	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/outbox/dispatch", middleware.RoleAdmin, map[string]int{"limit": 5000})
	assert.Equal(t, http.StatusBadRequest, code)

	s.integration.dispatchErr = service.ErrDispatchRunning
	code, env := s.do(t, http.MethodPost, "/api/v1/admin/outbox/dispatch", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, http.StatusConflict, env.Code)

	s.integration.dispatchErr = errors.New("pq: connection reset")
	code, env = s.do(t, http.MethodPost, "/api/v1/admin/outbox/dispatch", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, env.Message, "pq")
}

func TestSchedulerStatusRoute(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/api/v1/admin/scheduler/status", middleware.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"is_running":false,"next_run":"every 10m0s","next_cleanup":""}`, string(env.Data))
}

func TestIntegrationSettingsRoutes(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodGet, "/api/v1/admin/integration/settings", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodPut, "/api/v1/admin/integration/settings", middleware.RoleAdmin, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := s.do(t, http.MethodPut, "/api/v1/admin/integration/settings", middleware.RoleAdmin, map[string]any{"prospect_enabled": true})
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, s.integration.lastPatch.ProspectEnabled)
	assert.True(t, *s.integration.lastPatch.ProspectEnabled)
	assert.Nil(t, s.integration.lastPatch.Anonymize)
	assert.Contains(t, string(env.Data), `"prospect_enabled":true`)
}

func TestIntegrationTestAndExportRoutes(t *testing.T) {
	s := newTestServer(t)
	code, _ := s.do(t, http.MethodPost, "/api/v1/admin/integration/test", middleware.RoleAdmin, map[string]string{"contact": "ops@example.com"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/integration/test", middleware.RoleAdmin, map[string]string{"contact": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
	s.integration.testErr = errors.New("remote returned 503")
	code, env := s.do(t, http.MethodPost, "/api/v1/admin/integration/test", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.NotContains(t, env.Message, "503")

	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/integration/export", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, s.integration.lastDays)
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/integration/export", middleware.RoleAdmin, map[string]int{"days": 90})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 90, s.integration.lastDays)
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/integration/export", middleware.RoleAdmin, map[string]int{"days": 400})
	assert.Equal(t, http.StatusBadRequest, code)

	s.integration.exportErr = service.ErrIntegrationDisabled
	code, _ = s.do(t, http.MethodPost, "/api/v1/admin/integration/export", middleware.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFlagRoutes(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPatch, "/api/v1/admin/flags/referrals", middleware.RoleAdmin, map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, http.MethodGet, "/api/v1/admin/flags", middleware.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var views []service.FlagView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	byKey := map[string]service.FlagView{}
	for _, v := range views {
		byKey[v.Key] = v
	}
	assert.Equal(t, service.SourceCompany, byKey["referrals"].Source)
	assert.True(t, byKey["referrals"].Enabled)

	code, _ = s.do(t, http.MethodPatch, "/api/v1/admin/flags/referrals", middleware.RoleAdmin, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPatch, "/api/v1/admin/flags/Bad-Key!", middleware.RoleAdmin, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPatch, "/api/v1/admin/flags/dark_mode", middleware.RoleAdmin, map[string]any{"enabled": true})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPatch, "/api/v1/admin/flags/peer_reviews", middleware.RoleAdmin, map[string]any{"enabled": true, "scope": "global"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(t, http.MethodPatch, "/api/v1/admin/flags/peer_reviews", middleware.RoleSuperAdmin, map[string]any{"enabled": true, "scope": "global"})
	assert.Equal(t, http.StatusOK, code)

	on, err := s.flags.IsEnabled(context.Background(), "peer_reviews", "c2")
	require.NoError(t, err)
	assert.True(t, on)
}
