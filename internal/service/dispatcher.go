package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/clearstack/internal/model"
	"github.com/d60-Lab/clearstack/internal/outbox"
	"github.com/d60-Lab/clearstack/internal/prospect"
	"github.com/d60-Lab/clearstack/internal/repository"
	"github.com/d60-Lab/clearstack/pkg/logger"
	"github.com/d60-Lab/clearstack/pkg/reporter"
)

// Result summarises one dispatch run. Errors only holds what this run saw.
type Result struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, outbox.SanitizeError(fmt.Sprintf(format, args...)))
}

// Dispatcher 从外发盒拉取到期事件并逐条投递
type Dispatcher struct {
	repo   repository.EventRepository
	sink   prospect.Sink
	policy outbox.Policy
	now    func() time.Time
	tracer trace.Tracer
}

type DispatcherOption func(*Dispatcher)

func WithPolicy(p outbox.Policy) DispatcherOption { return func(d *Dispatcher) { d.policy = p } }

func WithClock(now func() time.Time) DispatcherOption { return func(d *Dispatcher) { d.now = now } }

func NewDispatcher(repo repository.EventRepository, sink prospect.Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:   repo,
		sink:   sink,
		policy: outbox.DefaultPolicy(),
		now:    time.Now,
		tracer: otel.Tracer("github.com/d60-Lab/clearstack/outbox"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// PublishPending delivers up to limit due events, oldest first, one at a time.
// It never panics or returns an error; failures end up in the result.
func (d *Dispatcher) PublishPending(ctx context.Context, limit int) (res Result) {
	res.Errors = []string{}
	ctx, span := d.tracer.Start(ctx, "outbox.publish_pending", trace.WithAttributes(attribute.Int("outbox.limit", limit)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			res.addError("dispatcher panic: %v", r)
			logger.Error("outbox dispatcher panic", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
		}
		span.SetAttributes(attribute.Int("outbox.sent", res.Sent), attribute.Int("outbox.failed", res.Failed))
	}()

	events, err := d.repo.FindDue(ctx, d.now(), limit)
	if err != nil {
		res.addError("list due events: %v", err)
		logger.Error("outbox list due events failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "list due events")
		return res
	}
	if len(events) > limit {
		events = events[:limit]
	}

	for _, ev := range events {
		d.attempt(ctx, ev, &res)
	}
	if len(events) > 0 {
		logger.Info("outbox dispatch run finished",
			zap.Int("due", len(events)),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("errors", len(res.Errors)))
	}
	return res
}

func (d *Dispatcher) attempt(ctx context.Context, ev *model.OutboundEvent, res *Result) {
	postErr := d.sink.Post(ctx, ev.Type, ev.Payload)
	now := d.now().UTC()

	var out outbox.Outcome
	if postErr == nil {
		out = d.policy.OnSuccess(ev.TryCount, now)
	} else {
		out = d.policy.OnFailure(ev.TryCount, now)
		res.addError("event %s (%s) attempt %d: %v", ev.ID, ev.Type, out.TryCount, postErr)
	}

	err := d.repo.UpdateStatus(ctx, ev.ID, repository.EventUpdate{
		Status:        out.Status,
		TryCount:      out.TryCount,
		NextAttemptAt: out.NextAttemptAt,
		UpdatedAt:     now,
	})
	if err != nil {
		// the event keeps its previous state and is picked up again later
		res.addError("update event %s: %v", ev.ID, err)
		if !errors.Is(err, repository.ErrEventNotPending) {
			logger.Error("outbox status update failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
		return
	}

	switch out.Status {
	case model.EventStatusSent:
		res.Sent++
	case model.EventStatusFailed:
		res.Failed++
		logger.Error("outbound event failed permanently",
			zap.String("event_id", ev.ID),
			zap.String("company_id", ev.CompanyID),
			zap.String("type", string(ev.Type)),
			zap.Int("try_count", out.TryCount),
			zap.Error(postErr))
		reporter.Capture(postErr, map[string]string{
			"component":  "outbox",
			"event_id":   ev.ID,
			"event_type": string(ev.Type),
		})
	default:
		logger.Warn("outbound event delivery failed, retry scheduled",
			zap.String("event_id", ev.ID),
			zap.Int("try_count", out.TryCount),
			zap.Time("next_attempt_at", out.NextAttemptAt),
			zap.Error(postErr))
	}
}

// CleanupSent deletes SENT events last updated more than retention ago.
func (d *Dispatcher) CleanupSent(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := d.now().UTC().Add(-retention)
	n, err := d.repo.DeleteSentOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sent events: %w", err)
	}
	if n > 0 {
		logger.Info("outbox cleanup removed sent events", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}
