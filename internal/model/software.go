package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Software 软件清单条目
type Software struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID string    `json:"company_id" gorm:"type:varchar(36);index:idx_software_company;not null"`
	Name      string    `json:"name" gorm:"type:varchar(128);not null"`
	Category  string    `json:"category" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Software) TableName() string { return "software" }

// SoftwareUsage 用户声明的软件使用情况
type SoftwareUsage struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID  string    `json:"company_id" gorm:"type:varchar(36);index;not null"`
	UserID     string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex:ux_usage_user_software;not null"`
	SoftwareID string    `json:"software_id" gorm:"type:varchar(36);uniqueIndex:ux_usage_user_software;not null"`
	Status     string    `json:"status" gorm:"type:varchar(16);not null"` // using, stopped, evaluating
	User       User      `json:"user" gorm:"foreignKey:UserID"`
	Software   Software  `json:"software" gorm:"foreignKey:SoftwareID"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (SoftwareUsage) TableName() string { return "software_usages" }

// Review 同行评价
type Review struct {
	ID          string                      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID   string                      `json:"company_id" gorm:"type:varchar(36);index:idx_review_company_created;not null"`
	SoftwareID  string                      `json:"software_id" gorm:"type:varchar(36);index;not null"`
	UserID      string                      `json:"user_id" gorm:"type:varchar(36);not null"`
	Rating      int                         `json:"rating" gorm:"not null"`
	Tags        datatypes.JSONSlice[string] `json:"tags"`
	Improvement string                      `json:"improvement" gorm:"type:text"`
	User        User                        `json:"user" gorm:"foreignKey:UserID"`
	CreatedAt   time.Time                   `json:"created_at" gorm:"index:idx_review_company_created"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

func (Review) TableName() string { return "reviews" }

// PurchaseRequest 采购申请
type PurchaseRequest struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID   string           `json:"company_id" gorm:"type:varchar(36);index:idx_request_company_created;not null"`
	RequesterID string           `json:"requester_id" gorm:"type:varchar(36);not null"`
	SoftwareID  *string          `json:"software_id" gorm:"type:varchar(36)"`
	SoftwareRef string           `json:"software_ref" gorm:"type:varchar(128)"`
	Title       string           `json:"title" gorm:"type:varchar(255);not null"`
	Description string           `json:"description" gorm:"type:text"`
	Urgency     string           `json:"urgency" gorm:"type:varchar(16)"`
	EstBudget   *decimal.Decimal `json:"est_budget" gorm:"type:decimal(12,2)"`
	ROIEstimate string           `json:"roi_estimate" gorm:"type:text"`
	Risks       string           `json:"risks" gorm:"type:text"`
	Status      string           `json:"status" gorm:"type:varchar(16);not null;default:'open'"` // open, accepted, rejected
	AcceptedAt  *time.Time       `json:"accepted_at"`
	Requester   User             `json:"requester" gorm:"foreignKey:RequesterID"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index:idx_request_company_created"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (PurchaseRequest) TableName() string { return "purchase_requests" }

// Contract 软件合同
type Contract struct {
	ID            string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID     string          `json:"company_id" gorm:"type:varchar(36);index;not null"`
	SoftwareID    string          `json:"software_id" gorm:"type:varchar(36);not null"`
	EntityID      *string         `json:"entity_id" gorm:"type:varchar(36)"`
	EndDate       *time.Time      `json:"end_date"`
	NoticeDays    int             `json:"notice_days" gorm:"not null;default:0"`
	AmountMonthly decimal.Decimal `json:"amount_monthly" gorm:"type:decimal(12,2);not null;default:0"`
	Currency      string          `json:"currency" gorm:"type:varchar(3);not null;default:'EUR'"`
	Status        string          `json:"status" gorm:"type:varchar(16);not null;default:'active'"` // active, ended
	Software      Software        `json:"software" gorm:"foreignKey:SoftwareID"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Contract) TableName() string { return "contracts" }

// EconomyOpportunity 计算得出的节省机会（不落库）
type EconomyOpportunity struct {
	Type            string          `json:"type"` // unused_licenses, duplicate_tool, downgrade_plan
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	SoftwareID      string          `json:"software_id"`
	CalculatedAt    time.Time       `json:"calculated_at"`
}
