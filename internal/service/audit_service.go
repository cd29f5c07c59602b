package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/evaluation-service/internal/events"
)

// AuditService writes an audit log line for every cycle lifecycle event.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventCyclePublished, a.handlePublication)
	a.dispatcher.Subscribe(events.EventCycleRepublished, a.handlePublication)
	a.dispatcher.Subscribe(events.EventCycleClosed, a.handleCycleClosed)
}

func (a *AuditService) handlePublication(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("cycle_id", event.CycleID),
		zap.Stringp("actor_id", event.ActorID),
	}
	if payload, ok := event.Payload.(events.CyclePublishedPayload); ok {
		fields = append(fields,
			zap.Int("evaluations_created", payload.EvaluationsCreated),
			zap.Int("evaluations_removed", payload.EvaluationsRemoved),
			zap.Timep("published_at", payload.PublishedAt))
	}
	a.logger.Info("CyclePublication", fields...)
	return nil
}

func (a *AuditService) handleCycleClosed(_ context.Context, event events.Event) error {
	a.logger.Info("CycleClosed",
		zap.String("event_id", event.ID),
		zap.String("cycle_id", event.CycleID),
		zap.Stringp("actor_id", event.ActorID))
	return nil
}
