package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/anonymize"
	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/prospect"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/pkg/logger"
)

const (
	recentEventsLimit = 10
	maxExportDays     = 365
	defaultExportDays = 30
	exportPageLimit   = 500
)

// OutboxStats is the per-tenant admin view of the outbox.
type OutboxStats struct {
	Pending int64                  `json:"pending"`
	Sent    int64                  `json:"sent"`
	Failed  int64                  `json:"failed"`
	Total   int64                  `json:"total"`
	Recent  []*model.OutboundEvent `json:"recent"`
}

// ExportResult counts the events a bulk export queued.
type ExportResult struct {
	Reviews   int `json:"reviews"`
	Requests  int `json:"requests"`
	Contracts int `json:"contracts"`
	Total     int `json:"total"`
}

// IntegrationService backs the admin operations of the prospect integration.
type IntegrationService struct {
	events    repository.EventRepository
	settings  repository.SettingRepository
	domain    repository.DomainRepository
	flags     FlagResolver
	publisher Enqueuer
	sink      prospect.Sink
	scheduler *Scheduler
	salt      string
	retry     prospect.RetryOptions
	now       func() time.Time
}

func NewIntegrationService(
	events repository.EventRepository,
	settings repository.SettingRepository,
	domain repository.DomainRepository,
	flags FlagResolver,
	publisher Enqueuer,
	sink prospect.Sink,
	scheduler *Scheduler,
	salt string,
) *IntegrationService {
	return &IntegrationService{
		events:    events,
		settings:  settings,
		domain:    domain,
		flags:     flags,
		publisher: publisher,
		sink:      sink,
		scheduler: scheduler,
		salt:      salt,
		retry:     prospect.DefaultRetryOptions(),
		now:       time.Now,
	}
}

func (s *IntegrationService) Stats(ctx context.Context, companyID string) (*OutboxStats, error) {
	counts, err := s.events.CountByStatus(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	recent, err := s.events.ListRecent(ctx, companyID, recentEventsLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	st := &OutboxStats{
		Pending: counts[model.EventStatusPending],
		Sent:    counts[model.EventStatusSent],
		Failed:  counts[model.EventStatusFailed],
		Recent:  recent,
	}
	st.Total = st.Pending + st.Sent + st.Failed
	return st, nil
}

// Dispatch runs an immediate bounded dispatch; ErrDispatchRunning if one is active.
func (s *IntegrationService) Dispatch(ctx context.Context, limit int) (Result, error) {
	return s.scheduler.TriggerDispatch(ctx, limit)
}

func (s *IntegrationService) SchedulerStatus() SchedulerStatus { return s.scheduler.Status() }

func (s *IntegrationService) GetSettings(ctx context.Context, companyID string) (*model.CompanyIntegrationSetting, error) {
	return s.settings.Get(ctx, companyID)
}

func (s *IntegrationService) UpdateSettings(ctx context.Context, companyID string, patch repository.SettingPatch) (*model.CompanyIntegrationSetting, error) {
	st, err := s.settings.Update(ctx, companyID, patch)
	if err != nil {
		return nil, err
	}
	logger.Info("integration settings updated",
		zap.String("company_id", companyID),
		zap.Bool("prospect_enabled", st.ProspectEnabled),
		zap.Bool("anonymize", st.Anonymize))
	return st, nil
}

// SendTestEvent posts a synthetic REVIEW_CREATED straight to the sink, with
// a short retry. Nothing is queued.
func (s *IntegrationService) SendTestEvent(ctx context.Context, companyID, contact string) error {
	st, err := s.settings.Get(ctx, companyID)
	if err != nil {
		return err
	}
	doc := map[string]any{
		"company_id":  companyID,
		"software_id": "test",
		"rating":      5,
		"tags":        []string{"test"},
		"improvement": "",
		"created_at":  s.now().UTC(),
		"test":        true,
		"contact":     contact,
	}
	if st.Anonymize {
		anonymize.Fields(doc, []string{"contact"}, s.salt)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return prospect.PostWithRetry(ctx, s.sink, model.EventReviewCreated, body, s.retry)
}

// Export queues events for the tenant's recent reviews and purchase requests
// and its active contracts. It is gated like the producers.
func (s *IntegrationService) Export(ctx context.Context, companyID string, days int) (*ExportResult, error) {
	if days <= 0 {
		days = defaultExportDays
	}
	if days > maxExportDays {
		days = maxExportDays
	}
	st, on, err := syncGate(ctx, s.flags, s.settings, companyID)
	if err != nil {
		return nil, err
	}
	if !on {
		return nil, ErrIntegrationDisabled
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -days)
	out := &ExportResult{}

	reviews, err := s.domain.ListReviewsSince(ctx, companyID, since, exportPageLimit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	for _, r := range reviews {
		if _, err := s.publisher.Enqueue(ctx, companyID, BuildReviewCreated(r, st.Anonymize)); err != nil {
			return out, err
		}
		out.Reviews++
	}

	requests, err := s.domain.ListRequestsSince(ctx, companyID, since, exportPageLimit)
	if err != nil {
		return out, fmt.Errorf("list purchase requests: %w", err)
	}
	for _, r := range requests {
		if _, err := s.publisher.Enqueue(ctx, companyID, BuildRequestCreated(r, st.Anonymize)); err != nil {
			return out, err
		}
		out.Requests++
	}

	contracts, err := s.domain.ListActiveContracts(ctx, companyID, exportPageLimit)
	if err != nil {
		return out, fmt.Errorf("list contracts: %w", err)
	}
	for _, c := range contracts {
		if _, err := s.publisher.Enqueue(ctx, companyID, BuildContractRenewal(c)); err != nil {
			return out, err
		}
		out.Contracts++
	}

	out.Total = out.Reviews + out.Requests + out.Contracts
	if err := s.settings.TouchSync(ctx, companyID, now); err != nil {
		logger.Warn("record last sync failed", zap.String("company_id", companyID), zap.Error(err))
	}
	return out, nil
}

// IsConflict reports whether err is the concurrent-run rejection.
func IsConflict(err error) bool { return errors.Is(err, ErrDispatchRunning) }
