package model

import "time"

// CompanyIntegrationSetting 每个租户一行，首次访问时以安全默认值懒创建
type CompanyIntegrationSetting struct {
	CompanyID       string     `json:"company_id" gorm:"primaryKey;type:varchar(36)"`
	ProspectEnabled bool       `json:"prospect_enabled" gorm:"not null;default:false"`
	Anonymize       bool       `json:"anonymize" gorm:"not null;default:false"`
	LastSyncAt      *time.Time `json:"last_sync_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (CompanyIntegrationSetting) TableName() string { return "company_integration_settings" }

// FeatureFlag is identified by (key, company_id); a nil CompanyID is the global default.
// NULL company ids never collide in ux_flag_key_company, so globals get their own
// partial index.
type FeatureFlag struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Key         string    `json:"key" gorm:"type:varchar(64);uniqueIndex:ux_flag_key_company;uniqueIndex:ux_flag_key_global,where:company_id IS NULL;not null"`
	CompanyID   *string   `json:"company_id" gorm:"type:varchar(36);uniqueIndex:ux_flag_key_company"`
	Enabled     bool      `json:"enabled" gorm:"not null;default:false"`
	Description string    `json:"description" gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (FeatureFlag) TableName() string { return "feature_flags" }

// IsGlobal reports whether the row is the global default for its key.
func (f FeatureFlag) IsGlobal() bool { return f.CompanyID == nil }
