package model

import (
	"time"

	"gorm.io/datatypes"
)

// EventType 外发事件类型（封闭枚举）
type EventType string

const (
	EventReviewCreated      EventType = "REVIEW_CREATED"
	EventRequestCreated     EventType = "REQUEST_CREATED"
	EventRequestAccepted    EventType = "REQUEST_ACCEPTED"
	EventSoftwareUsage      EventType = "SOFTWARE_USAGE"
	EventContractRenewal    EventType = "CONTRACT_RENEWAL"
	EventEconomyOpportunity EventType = "ECONOMY_OPPORTUNITY"
)

// EventTypes lists every known event type in declaration order.
var EventTypes = []EventType{
	EventReviewCreated,
	EventRequestCreated,
	EventRequestAccepted,
	EventSoftwareUsage,
	EventContractRenewal,
	EventEconomyOpportunity,
}

// IsValid reports whether t is one of EventTypes.
func (t EventType) IsValid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// EventStatus 外发事件状态: PENDING -> SENT | FAILED
type EventStatus string

const (
	EventStatusPending EventStatus = "PENDING"
	EventStatusSent    EventStatus = "SENT"
	EventStatusFailed  EventStatus = "FAILED"
)

// OutboundEvent 外发盒事件，payload 已匿名化，存储层不解析
type OutboundEvent struct {
	ID            string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CompanyID     string         `json:"company_id" gorm:"type:varchar(36);index:idx_outbound_company;not null"`
	Type          EventType      `json:"type" gorm:"type:varchar(32);not null"`
	Payload       datatypes.JSON `json:"payload" gorm:"not null"`
	Status        EventStatus    `json:"status" gorm:"type:varchar(16);index:idx_outbound_due,priority:1;not null"`
	TryCount      int            `json:"try_count" gorm:"not null;default:0"`
	NextAttemptAt time.Time      `json:"next_attempt_at" gorm:"index:idx_outbound_due,priority:2;not null"`
	CreatedAt     time.Time      `json:"created_at" gorm:"index;not null"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null"`
}

func (OutboundEvent) TableName() string { return "outbound_events" }
