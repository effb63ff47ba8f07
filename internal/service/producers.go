package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/anonymize"
	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/outbox"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/pkg/logger"
	"github.com/d60-Lab/clearstack/pkg/reporter"
)

// EconomyThreshold is the minimum estimated amount that is worth an event.
var EconomyThreshold = decimal.NewFromInt(200)

// Producers turn business actions into outbound events. Every method swallows
// its own failures: the business operation that triggered it has already
// committed and must not be affected.
type Producers struct {
	domain    repository.DomainRepository
	settings  repository.SettingRepository
	flags     FlagResolver
	publisher Enqueuer
	now       func() time.Time
}

func NewProducers(domain repository.DomainRepository, settings repository.SettingRepository, flags FlagResolver, publisher Enqueuer) *Producers {
	return &Producers{domain: domain, settings: settings, flags: flags, publisher: publisher, now: time.Now}
}

// syncGate reports whether companyID may queue events: the prospect_sync flag
// and the tenant setting must both be on. The setting is nil when the flag is off.
func syncGate(ctx context.Context, flags FlagResolver, settings repository.SettingRepository, companyID string) (*model.CompanyIntegrationSetting, bool, error) {
	on, err := flags.IsEnabled(ctx, FlagProspectSync, companyID)
	if err != nil {
		return nil, false, err
	}
	if !on {
		return nil, false, nil
	}
	s, err := settings.Get(ctx, companyID)
	if err != nil {
		return nil, false, fmt.Errorf("load integration settings: %w", err)
	}
	return s, s.ProspectEnabled, nil
}

// gate reports whether companyID sends events, and whether it anonymizes them.
func (p *Producers) gate(ctx context.Context, companyID string) (send, anon bool, err error) {
	s, send, err := syncGate(ctx, p.flags, p.settings, companyID)
	if err != nil || !send {
		return false, false, err
	}
	return true, s.Anonymize, nil
}

func (p *Producers) run(ctx context.Context, hook, entityID string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event hook panicked", zap.String("hook", hook), zap.String("entity_id", entityID), zap.Any("panic", r))
			reporter.Capture(fmt.Errorf("hook %s panic: %v", hook, r), map[string]string{"component": "hooks", "hook": hook})
		}
	}()
	if err := fn(ctx); err != nil {
		logger.Error("event hook failed", zap.String("hook", hook), zap.String("entity_id", entityID), zap.Error(err))
		reporter.Capture(err, map[string]string{"component": "hooks", "hook": hook})
	}
}

func (p *Producers) ReviewCreated(ctx context.Context, reviewID string) {
	p.run(ctx, "review_created", reviewID, func(ctx context.Context) error {
		r, err := p.domain.GetReview(ctx, reviewID)
		if err != nil {
			return fmt.Errorf("load review: %w", err)
		}
		send, anon, err := p.gate(ctx, r.CompanyID)
		if err != nil || !send {
			return err
		}
		_, err = p.publisher.Enqueue(ctx, r.CompanyID, BuildReviewCreated(r, anon))
		return err
	})
}

func (p *Producers) RequestCreated(ctx context.Context, requestID string) {
	p.run(ctx, "request_created", requestID, func(ctx context.Context) error {
		r, err := p.domain.GetPurchaseRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("load purchase request: %w", err)
		}
		send, anon, err := p.gate(ctx, r.CompanyID)
		if err != nil || !send {
			return err
		}
		_, err = p.publisher.Enqueue(ctx, r.CompanyID, BuildRequestCreated(r, anon))
		return err
	})
}

func (p *Producers) RequestAccepted(ctx context.Context, requestID string) {
	p.run(ctx, "request_accepted", requestID, func(ctx context.Context) error {
		r, err := p.domain.GetPurchaseRequest(ctx, requestID)
		if err != nil {
			return fmt.Errorf("load purchase request: %w", err)
		}
		send, anon, err := p.gate(ctx, r.CompanyID)
		if err != nil || !send {
			return err
		}
		_, err = p.publisher.Enqueue(ctx, r.CompanyID, BuildRequestAccepted(r, anon, p.now()))
		return err
	})
}

func (p *Producers) SoftwareUsageDeclared(ctx context.Context, usageID string) {
	p.run(ctx, "software_usage", usageID, func(ctx context.Context) error {
		u, err := p.domain.GetSoftwareUsage(ctx, usageID)
		if err != nil {
			return fmt.Errorf("load software usage: %w", err)
		}
		send, anon, err := p.gate(ctx, u.CompanyID)
		if err != nil || !send {
			return err
		}
		_, err = p.publisher.Enqueue(ctx, u.CompanyID, BuildSoftwareUsage(u, anon, p.now()))
		return err
	})
}

func (p *Producers) ContractRenewal(ctx context.Context, contractID string) {
	p.run(ctx, "contract_renewal", contractID, func(ctx context.Context) error {
		c, err := p.domain.GetContract(ctx, contractID)
		if err != nil {
			return fmt.Errorf("load contract: %w", err)
		}
		send, _, err := p.gate(ctx, c.CompanyID)
		if err != nil || !send {
			return err
		}
		_, err = p.publisher.Enqueue(ctx, c.CompanyID, BuildContractRenewal(c))
		return err
	})
}

// EconomyOpportunities enqueues one event per item whose estimated amount is
// at least EconomyThreshold.
func (p *Producers) EconomyOpportunities(ctx context.Context, companyID string, items []model.EconomyOpportunity) {
	p.run(ctx, "economy_opportunity", companyID, func(ctx context.Context) error {
		send, _, err := p.gate(ctx, companyID)
		if err != nil || !send {
			return err
		}
		for _, it := range items {
			if it.EstimatedAmount.LessThan(EconomyThreshold) {
				continue
			}
			if _, err := p.publisher.Enqueue(ctx, companyID, BuildEconomyOpportunity(companyID, it)); err != nil {
				return err
			}
		}
		return nil
	})
}

func BuildReviewCreated(r *model.Review, anon bool) outbox.ReviewCreated {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return outbox.ReviewCreated{
		CompanyID:   r.CompanyID,
		SoftwareID:  r.SoftwareID,
		Rating:      r.Rating,
		Tags:        tags,
		Improvement: r.Improvement,
		CreatedAt:   r.CreatedAt.UTC(),
		User:        anonymize.User(r.User, anon),
	}
}

func BuildRequestCreated(r *model.PurchaseRequest, anon bool) outbox.RequestCreated {
	return outbox.RequestCreated{
		CompanyID:   r.CompanyID,
		Title:       r.Title,
		Urgency:     r.Urgency,
		EstBudget:   r.EstBudget,
		Description: outbox.TruncateDescription(r.Description),
		CreatedAt:   r.CreatedAt.UTC(),
		Requester:   anonymize.User(r.Requester, anon),
	}
}

func BuildRequestAccepted(r *model.PurchaseRequest, anon bool, now time.Time) outbox.RequestAccepted {
	acceptedAt := now.UTC()
	if r.AcceptedAt != nil {
		acceptedAt = r.AcceptedAt.UTC()
	}
	return outbox.RequestAccepted{
		CompanyID:   r.CompanyID,
		SoftwareRef: r.SoftwareRef,
		SoftwareID:  r.SoftwareID,
		ROIEstimate: r.ROIEstimate,
		Risks:       r.Risks,
		EstBudget:   r.EstBudget,
		AcceptedAt:  acceptedAt,
		Requester:   anonymize.User(r.Requester, anon),
	}
}

func BuildSoftwareUsage(u *model.SoftwareUsage, anon bool, now time.Time) outbox.SoftwareUsage {
	return outbox.SoftwareUsage{
		CompanyID: u.CompanyID,
		User:      anonymize.User(u.User, anon),
		Software: outbox.SoftwareRef{
			ID:       u.Software.ID,
			Name:     u.Software.Name,
			Category: u.Software.Category,
		},
		Status:    u.Status,
		Timestamp: now.UTC(),
	}
}

func BuildContractRenewal(c *model.Contract) outbox.ContractRenewal {
	return outbox.ContractRenewal{
		CompanyID:     c.CompanyID,
		SoftwareID:    c.SoftwareID,
		EndDate:       c.EndDate,
		NoticeDays:    c.NoticeDays,
		AmountMonthly: c.AmountMonthly,
		Currency:      c.Currency,
		EntityID:      c.EntityID,
		SoftwareName:  c.Software.Name,
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func BuildEconomyOpportunity(companyID string, it model.EconomyOpportunity) outbox.EconomyOpportunity {
	return outbox.EconomyOpportunity{
		CompanyID:       companyID,
		Type:            it.Type,
		EstimatedAmount: it.EstimatedAmount,
		SoftwareID:      it.SoftwareID,
		CalculatedAt:    it.CalculatedAt.UTC(),
	}
}
