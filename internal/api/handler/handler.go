package handler

import (
	"context"

	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/internal/service"
)

// IntegrationService is what the admin endpoints need from the outbox side.
type IntegrationService interface {
	Stats(ctx context.Context, companyID string) (*service.OutboxStats, error)
	Dispatch(ctx context.Context, limit int) (service.Result, error)
	SchedulerStatus() service.SchedulerStatus
	GetSettings(ctx context.Context, companyID string) (*model.CompanyIntegrationSetting, error)
	UpdateSettings(ctx context.Context, companyID string, patch repository.SettingPatch) (*model.CompanyIntegrationSetting, error)
	SendTestEvent(ctx context.Context, companyID, contact string) error
	Export(ctx context.Context, companyID string, days int) (*service.ExportResult, error)
}

type FlagService interface {
	List(ctx context.Context, companyID string) ([]service.FlagView, error)
	Set(ctx context.Context, key string, companyID *string, enabled bool) (*model.FeatureFlag, error)
}

type Handler struct {
	integration IntegrationService
	flags       FlagService
}

func New(integration IntegrationService, flags FlagService) *Handler {
	return &Handler{integration: integration, flags: flags}
}
