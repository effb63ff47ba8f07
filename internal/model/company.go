package model

import "time"

// Company 租户
type Company struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"type:varchar(128);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

// User 租户成员
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID string    `json:"company_id" gorm:"type:varchar(36);index:idx_user_company;not null"`
	Email     string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	FirstName string    `json:"first_name" gorm:"type:varchar(64)"`
	LastName  string    `json:"last_name" gorm:"type:varchar(64)"`
	Role      string    `json:"role" gorm:"type:varchar(16);not null;default:'member'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
