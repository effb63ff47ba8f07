package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/clearstack/internal/model"
)

// SettingPatch holds the optional fields of a settings update.
type SettingPatch struct {
	ProspectEnabled *bool
	Anonymize       *bool
}

type SettingRepository interface {
	// Get returns the tenant row, creating it with prospect and anonymize off.
	Get(ctx context.Context, companyID string) (*model.CompanyIntegrationSetting, error)
	Update(ctx context.Context, companyID string, patch SettingPatch) (*model.CompanyIntegrationSetting, error)
	TouchSync(ctx context.Context, companyID string, at time.Time) error
}

type settingRepository struct{ db *gorm.DB }

func NewSettingRepository(db *gorm.DB) SettingRepository { return &settingRepository{db: db} }

func (r *settingRepository) Get(ctx context.Context, companyID string) (*model.CompanyIntegrationSetting, error) {
	s := model.CompanyIntegrationSetting{CompanyID: companyID}
	err := r.db.WithContext(ctx).
		Where(model.CompanyIntegrationSetting{CompanyID: companyID}).
		Attrs(model.CompanyIntegrationSetting{ProspectEnabled: false, Anonymize: false}).
		FirstOrCreate(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingRepository) Update(ctx context.Context, companyID string, patch SettingPatch) (*model.CompanyIntegrationSetting, error) {
	s, err := r.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if patch.ProspectEnabled != nil {
		updates["prospect_enabled"] = *patch.ProspectEnabled
		s.ProspectEnabled = *patch.ProspectEnabled
	}
	if patch.Anonymize != nil {
		updates["anonymize"] = *patch.Anonymize
		s.Anonymize = *patch.Anonymize
	}
	if len(updates) == 0 {
		return s, nil
	}
	err = r.db.WithContext(ctx).
		Model(&model.CompanyIntegrationSetting{}).
		Where("company_id = ?", companyID).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *settingRepository) TouchSync(ctx context.Context, companyID string, at time.Time) error {
	if _, err := r.Get(ctx, companyID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&model.CompanyIntegrationSetting{}).
		Where("company_id = ?", companyID).
		Update("last_sync_at", at.UTC()).Error
}
