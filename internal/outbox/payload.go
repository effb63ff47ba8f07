// Package outbox holds the outbound event payload variants and the retry policy
// shared by the publisher and the dispatcher.
package outbox

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/d60-Lab/clearstack/internal/anonymize"
	"github.com/d60-Lab/clearstack/internal/model"
)

// Payload is implemented only by the event variants in this package; the event
// type stored next to a payload is always derived from its variant.
type Payload interface {
	EventType() model.EventType
	payload()
}

type ReviewCreated struct {
	CompanyID   string                   `json:"company_id"`
	SoftwareID  string                   `json:"software_id"`
	Rating      int                      `json:"rating"`
	Tags        []string                 `json:"tags"`
	Improvement string                   `json:"improvement"`
	CreatedAt   time.Time                `json:"created_at"`
	User        anonymize.AnonymizedUser `json:"user"`
}

type RequestCreated struct {
	CompanyID   string                   `json:"company_id"`
	Title       string                   `json:"title"`
	Urgency     string                   `json:"urgency"`
	EstBudget   *decimal.Decimal         `json:"est_budget"`
	Description string                   `json:"description"`
	CreatedAt   time.Time                `json:"created_at"`
	Requester   anonymize.AnonymizedUser `json:"requester"`
}

type RequestAccepted struct {
	CompanyID   string                   `json:"company_id"`
	SoftwareRef string                   `json:"software_ref"`
	SoftwareID  *string                  `json:"software_id"`
	ROIEstimate string                   `json:"roi_estimate"`
	Risks       string                   `json:"risks"`
	EstBudget   *decimal.Decimal         `json:"est_budget"`
	AcceptedAt  time.Time                `json:"accepted_at"`
	Requester   anonymize.AnonymizedUser `json:"requester"`
}

type SoftwareRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type SoftwareUsage struct {
	CompanyID string                   `json:"company_id"`
	User      anonymize.AnonymizedUser `json:"user"`
	Software  SoftwareRef              `json:"software"`
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
}

type ContractRenewal struct {
	CompanyID     string          `json:"company_id"`
	SoftwareID    string          `json:"software_id"`
	EndDate       *time.Time      `json:"end_date"`
	NoticeDays    int             `json:"notice_days"`
	AmountMonthly decimal.Decimal `json:"amount_monthly"`
	Currency      string          `json:"currency"`
	EntityID      *string         `json:"entity_id"`
	SoftwareName  string          `json:"software_name"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type EconomyOpportunity struct {
	CompanyID       string          `json:"company_id"`
	Type            string          `json:"type"`
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
	SoftwareID      string          `json:"software_id"`
	CalculatedAt    time.Time       `json:"calculated_at"`
}

func (ReviewCreated) EventType() model.EventType      { return model.EventReviewCreated }
func (RequestCreated) EventType() model.EventType     { return model.EventRequestCreated }
func (RequestAccepted) EventType() model.EventType    { return model.EventRequestAccepted }
func (SoftwareUsage) EventType() model.EventType      { return model.EventSoftwareUsage }
func (ContractRenewal) EventType() model.EventType    { return model.EventContractRenewal }
func (EconomyOpportunity) EventType() model.EventType { return model.EventEconomyOpportunity }

func (ReviewCreated) payload()      {}
func (RequestCreated) payload()     {}
func (RequestAccepted) payload()    {}
func (SoftwareUsage) payload()      {}
func (ContractRenewal) payload()    {}
func (EconomyOpportunity) payload() {}

// DescriptionLimit caps REQUEST_CREATED descriptions, counted in runes.
const DescriptionLimit = 100

// TruncateDescription cuts s to DescriptionLimit runes.
func TruncateDescription(s string) string {
	r := []rune(s)
	if len(r) <= DescriptionLimit {
		return s
	}
	return string(r[:DescriptionLimit])
}
