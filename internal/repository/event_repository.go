package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/clearstack/internal/model"
)

// EventUpdate carries the fields the dispatcher changes after an attempt.
type EventUpdate struct {
	Status        model.EventStatus
	TryCount      int
	NextAttemptAt time.Time
	UpdatedAt     time.Time
}

// EventRepository 外发事件存储。派发是全局的，统计与列表按租户过滤。
type EventRepository interface {
	Create(ctx context.Context, event *model.OutboundEvent) error
	GetByID(ctx context.Context, id string) (*model.OutboundEvent, error)
	// FindDue returns PENDING events with next_attempt_at <= now, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboundEvent, error)
	// UpdateStatus applies u only while the event is still PENDING.
	UpdateStatus(ctx context.Context, id string, u EventUpdate) error
	CountByStatus(ctx context.Context, companyID string) (map[model.EventStatus]int64, error)
	ListRecent(ctx context.Context, companyID string, limit int) ([]*model.OutboundEvent, error)
	// DeleteSentOlderThan removes SENT events last updated before cutoff.
	DeleteSentOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type eventRepository struct{ db *gorm.DB }

func NewEventRepository(db *gorm.DB) EventRepository { return &eventRepository{db: db} }

func (r *eventRepository) Create(ctx context.Context, event *model.OutboundEvent) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, event.Type)
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*model.OutboundEvent, error) {
	var e model.OutboundEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *eventRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboundEvent, error) {
	if limit <= 0 {
		return nil, nil
	}
	var res []*model.OutboundEvent
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", model.EventStatusPending, now.UTC()).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *eventRepository) UpdateStatus(ctx context.Context, id string, u EventUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&model.OutboundEvent{}).
		Where("id = ? AND status = ?", id, model.EventStatusPending).
		Updates(map[string]any{
			"status":          u.Status,
			"try_count":       u.TryCount,
			"next_attempt_at": u.NextAttemptAt.UTC(),
			"updated_at":      u.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrEventNotPending
	}
	return nil
}

func (r *eventRepository) CountByStatus(ctx context.Context, companyID string) (map[model.EventStatus]int64, error) {
	type row struct {
		Status model.EventStatus
		Total  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&model.OutboundEvent{}).
		Select("status, COUNT(*) AS total").
		Where("company_id = ?", companyID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[model.EventStatus]int64{
		model.EventStatusPending: 0,
		model.EventStatusSent:    0,
		model.EventStatusFailed:  0,
	}
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

func (r *eventRepository) ListRecent(ctx context.Context, companyID string, limit int) ([]*model.OutboundEvent, error) {
	var res []*model.OutboundEvent
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *eventRepository) DeleteSentOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.EventStatusSent, cutoff.UTC()).
		Delete(&model.OutboundEvent{})
	return res.RowsAffected, res.Error
}
