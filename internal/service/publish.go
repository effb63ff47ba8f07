package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/outbox"
	"github.com/d60-Lab/clearstack/internal/repository"
)

// Enqueuer persists an intent to send.
type Enqueuer interface {
	Enqueue(ctx context.Context, companyID string, payload outbox.Payload) (*model.OutboundEvent, error)
}

// Publisher 负责把事件以 PENDING 状态落地到外发盒
type Publisher struct {
	repo repository.EventRepository
	now  func() time.Time
}

func NewPublisher(repo repository.EventRepository) *Publisher {
	return &Publisher{repo: repo, now: time.Now}
}

// Enqueue stores payload as a PENDING event due immediately. The event type is
// taken from the payload variant.
func (p *Publisher) Enqueue(ctx context.Context, companyID string, payload outbox.Payload) (*model.OutboundEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.EventType(), err)
	}
	now := p.now().UTC()
	ev := &model.OutboundEvent{
		ID:            uuid.New().String(),
		CompanyID:     companyID,
		Type:          payload.EventType(),
		Payload:       datatypes.JSON(body),
		Status:        model.EventStatusPending,
		TryCount:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.repo.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueueing, err)
	}
	return ev, nil
}
