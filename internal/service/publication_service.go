package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/evaluation-service/internal/assignment"
	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/events"
	"github.com/spec-kit/evaluation-service/internal/lock"
	"github.com/spec-kit/evaluation-service/internal/observability"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
	"github.com/spec-kit/evaluation-service/internal/persistence"
	"github.com/spec-kit/evaluation-service/internal/repository"
)

// PublicationService moves cycles to PUBLISHED and keeps their evaluations equal to the
// assignment set derived from the current org hierarchy.
type PublicationService struct {
	cycles          repository.CycleRepository
	evaluations     repository.EvaluationRepository
	publications    repository.PublicationRepository
	org             repository.OrgRepository
	tx              persistence.TxManager
	locker          lock.Locker
	dispatcher      events.Dispatcher
	deriver         *assignment.Deriver
	timestampPolicy config.RepublishTimestampPolicy
	metrics         *observability.Metrics
	logger          *zap.Logger
	now             func() time.Time
}

// PublicationDependencies bundles collaborators for the publication service.
type PublicationDependencies struct {
	CycleRepo       repository.CycleRepository
	EvaluationRepo  repository.EvaluationRepository
	PublicationRepo repository.PublicationRepository
	OrgRepo         repository.OrgRepository
	TxManager       persistence.TxManager
	Locker          lock.Locker
	Dispatcher      events.Dispatcher
	Policy          assignment.Policy
	TimestampPolicy config.RepublishTimestampPolicy
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Clock           func() time.Time
}

// PublicationResult is returned by publish and republish.
type PublicationResult struct {
	CycleID            string             `json:"cycleId"`
	Status             domain.CycleStatus `json:"status"`
	EvaluationsCreated int                `json:"evaluationsCreated"`
	EvaluationsRemoved int                `json:"evaluationsRemoved"`
	PublishedAt        *time.Time         `json:"publishedAt,omitempty"`
}

// Preview is a dry run of the derivation for a cycle.
type Preview struct {
	CycleID             string                        `json:"cycleId"`
	Status              domain.CycleStatus            `json:"status"`
	Total               int                           `json:"total"`
	CountByType         map[domain.EvaluationType]int `json:"countByType"`
	ExistingEvaluations int64                         `json:"existingEvaluations"`
	Triples             []assignment.Triple           `json:"triples"`
}

// NewPublicationService constructs the service.
func NewPublicationService(deps PublicationDependencies) *PublicationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	timestampPolicy := deps.TimestampPolicy
	if timestampPolicy == "" {
		timestampPolicy = config.RepublishPreservePublishedAt
	}
	return &PublicationService{
		cycles:          deps.CycleRepo,
		evaluations:     deps.EvaluationRepo,
		publications:    deps.PublicationRepo,
		org:             deps.OrgRepo,
		tx:              deps.TxManager,
		locker:          locker,
		dispatcher:      deps.Dispatcher,
		deriver:         assignment.NewDeriver(deps.Policy),
		timestampPolicy: timestampPolicy,
		metrics:         deps.Metrics,
		logger:          logger,
		now:             clock,
	}
}

// PublishCycle materializes the assignment set of a DRAFT cycle and marks it PUBLISHED.
func (s *PublicationService) PublishCycle(ctx context.Context, actorID, cycleID string) (PublicationResult, error) {
	return s.run(ctx, actorID, cycleID, domain.PublicationActionPublish)
}

// RepublishCycle replaces every evaluation of a PUBLISHED cycle with a freshly derived set.
// Content entered on the previous evaluations is discarded.
func (s *PublicationService) RepublishCycle(ctx context.Context, actorID, cycleID string) (PublicationResult, error) {
	return s.run(ctx, actorID, cycleID, domain.PublicationActionRepublish)
}

// PreviewCycle derives the assignment set without writing anything.
func (s *PublicationService) PreviewCycle(ctx context.Context, cycleID string) (Preview, error) {
	cycle, err := s.cycles.GetByID(ctx, cycleID)
	if err != nil {
		return Preview{}, mapPublicationError(err, cycleID)
	}
	if cycle.Status == domain.CycleStatusClosed {
		return Preview{}, mapPublicationError(
			fmt.Errorf("%w: cycle is %s", domain.ErrInvalidCycleState, cycle.Status), cycleID)
	}

	target, err := s.derive(ctx, cycle)
	if err != nil {
		return Preview{}, mapPublicationError(err, cycleID)
	}
	existing, err := s.evaluations.CountByCycle(ctx, cycleID)
	if err != nil {
		return Preview{}, mapPublicationError(err, cycleID)
	}

	return Preview{
		CycleID:             cycle.ID,
		Status:              cycle.Status,
		Total:               target.Len(),
		CountByType:         target.CountByType(),
		ExistingEvaluations: existing,
		Triples:             target.Sorted(),
	}, nil
}

func publicationLockKey(cycleID string) string {
	return "cycle-publication:" + cycleID
}

func (s *PublicationService) run(ctx context.Context, actorID, cycleID string, action domain.PublicationAction) (PublicationResult, error) {
	start := s.now()

	unlock, err := s.locker.Acquire(ctx, publicationLockKey(cycleID))
	if err != nil {
		return PublicationResult{}, mapPublicationError(err, cycleID)
	}

	var (
		result  PublicationResult
		triples []assignment.Triple
	)
	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		res, applied, err := s.reconcile(txCtx, actorID, cycleID, action)
		if err != nil {
			return err
		}
		result, triples = res, applied
		return nil
	})

	// The lock only guards the transaction; metrics, logs and events run without it.
	if uErr := unlock(context.WithoutCancel(ctx)); uErr != nil {
		s.logger.Warn("release publication lock", zap.String("cycle_id", cycleID), zap.Error(uErr))
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	s.metrics.RecordPublication(string(action), outcome, result.EvaluationsCreated, result.EvaluationsRemoved, s.now().Sub(start))

	if err != nil {
		s.logger.Error("cycle publication failed",
			zap.String("cycle_id", cycleID),
			zap.String("action", string(action)),
			zap.Error(err))
		return PublicationResult{}, mapPublicationError(err, cycleID)
	}

	s.logger.Info("cycle published",
		zap.String("cycle_id", cycleID),
		zap.String("action", string(action)),
		zap.Int("evaluations_created", result.EvaluationsCreated),
		zap.Int("evaluations_removed", result.EvaluationsRemoved))

	eventType := events.EventCyclePublished
	if action == domain.PublicationActionRepublish {
		eventType = events.EventCycleRepublished
	}
	s.publishEvent(ctx, events.Event{
		Type:    eventType,
		CycleID: cycleID,
		ActorID: optionalString(actorID),
		Payload: events.CyclePublishedPayload{
			Action:             action,
			PublishedAt:        result.PublishedAt,
			EvaluationsCreated: result.EvaluationsCreated,
			EvaluationsRemoved: result.EvaluationsRemoved,
			Triples:            triples,
		},
	})
	return result, nil
}

// reconcile runs inside the transaction. Every check and the derivation happen before the
// first write.
func (s *PublicationService) reconcile(ctx context.Context, actorID, cycleID string, action domain.PublicationAction) (PublicationResult, []assignment.Triple, error) {
	if err := s.cycles.LockPublication(ctx, cycleID); err != nil {
		return PublicationResult{}, nil, err
	}
	cycle, err := s.cycles.GetForUpdate(ctx, cycleID)
	if err != nil {
		return PublicationResult{}, nil, err
	}

	required := domain.CycleStatusDraft
	if action == domain.PublicationActionRepublish {
		required = domain.CycleStatusPublished
	}
	if cycle.Status != required {
		return PublicationResult{}, nil, fmt.Errorf("%w: cannot %s a %s cycle",
			domain.ErrInvalidCycleState, actionVerb(action), cycle.Status)
	}

	target, err := s.derive(ctx, cycle)
	if err != nil {
		return PublicationResult{}, nil, err
	}
	triples := target.Sorted()

	var removed int64
	if action == domain.PublicationActionRepublish {
		removed, err = s.evaluations.DeleteByCycle(ctx, cycleID)
		if err != nil {
			return PublicationResult{}, nil, reconciliationError("delete evaluations", err)
		}
	}

	rows := make([]domain.Evaluation, 0, len(triples))
	for _, t := range triples {
		rows = append(rows, domain.Evaluation{
			ID:             uuid.NewString(),
			CycleID:        cycleID,
			EmployeeID:     t.EmployeeID,
			EvaluatorID:    t.EvaluatorID,
			EvaluationType: t.EvaluationType,
			Status:         domain.EvaluationStatusDraft,
		})
	}
	created, err := s.evaluations.CreateBatch(ctx, rows)
	if err != nil {
		return PublicationResult{}, nil, reconciliationError("insert evaluations", err)
	}
	if created != int64(len(rows)) {
		return PublicationResult{}, nil, reconciliationError("insert evaluations",
			fmt.Errorf("inserted %d of %d rows", created, len(rows)))
	}

	now := s.now().UTC()
	if cycle.PublishedAt == nil || action == domain.PublicationActionPublish ||
		s.timestampPolicy == config.RepublishRefreshPublishedAt {
		cycle.PublishedAt = &now
	}
	cycle.Status = domain.CycleStatusPublished
	if err := s.cycles.UpdateState(ctx, cycle); err != nil {
		return PublicationResult{}, nil, reconciliationError("update cycle", err)
	}

	history := &domain.CyclePublication{
		CycleID:            cycleID,
		Action:             action,
		EvaluationsCreated: int(created),
		EvaluationsRemoved: int(removed),
		ActorID:            optionalString(actorID),
	}
	if err := s.publications.Create(ctx, history); err != nil {
		return PublicationResult{}, nil, reconciliationError("record publication", err)
	}

	return PublicationResult{
		CycleID:            cycleID,
		Status:             cycle.Status,
		EvaluationsCreated: int(created),
		EvaluationsRemoved: int(removed),
		PublishedAt:        cycle.PublishedAt,
	}, triples, nil
}

func (s *PublicationService) derive(ctx context.Context, cycle *domain.EvaluationCycle) (assignment.TargetSet, error) {
	if len(cycle.EvaluationTypes) == 0 {
		return assignment.TargetSet{}, fmt.Errorf("%w: cycle %s", domain.ErrEmptyEvaluationTypes, cycle.ID)
	}
	src, err := s.org.GetHierarchySnapshot(ctx)
	if err != nil {
		return assignment.TargetSet{}, fmt.Errorf("read hierarchy: %w", err)
	}
	snapshot, err := orgchart.NewSnapshot(src)
	if err != nil {
		return assignment.TargetSet{}, err
	}
	return s.deriver.Derive(cycle, snapshot, nil)
}

func (s *PublicationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event subscribers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("cycle_id", event.CycleID),
			zap.Error(err))
	}
}

func reconciliationError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrReconciliationFailure, step, err)
}

func actionVerb(action domain.PublicationAction) string {
	if action == domain.PublicationActionRepublish {
		return "republish"
	}
	return "publish"
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
