package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/events"
	"github.com/spec-kit/evaluation-service/internal/lock"
	"github.com/spec-kit/evaluation-service/internal/persistence"
	"github.com/spec-kit/evaluation-service/internal/repository"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

// CycleService manages the evaluation cycle lifecycle around publication.
type CycleService struct {
	cycles       repository.CycleRepository
	evaluations  repository.EvaluationRepository
	publications repository.PublicationRepository
	tx           persistence.TxManager
	locker       lock.Locker
	dispatcher   events.Dispatcher
	logger       *zap.Logger
}

// CycleDependencies bundles repositories for the cycle service.
type CycleDependencies struct {
	CycleRepo       repository.CycleRepository
	EvaluationRepo  repository.EvaluationRepository
	PublicationRepo repository.PublicationRepository
	TxManager       persistence.TxManager
	Locker          lock.Locker
	Dispatcher      events.Dispatcher
	Logger          *zap.Logger
}

// CycleCreateInput describes cycle creation payload.
type CycleCreateInput struct {
	Title              string
	TemplateID         string
	EvaluationTypes    []domain.EvaluationType
	StartDate          time.Time
	EndDate            time.Time
	SubmissionDeadline *time.Time
}

// NewCycleService constructs the service. Pass the same locker as the publication service so
// closing never interleaves with a republish.
func NewCycleService(deps CycleDependencies) *CycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := deps.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	return &CycleService{
		cycles:       deps.CycleRepo,
		evaluations:  deps.EvaluationRepo,
		publications: deps.PublicationRepo,
		tx:           deps.TxManager,
		locker:       locker,
		dispatcher:   deps.Dispatcher,
		logger:       logger,
	}
}

// CreateCycle stores a new DRAFT cycle.
func (s *CycleService) CreateCycle(ctx context.Context, input CycleCreateInput) (*domain.EvaluationCycle, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"field": "title"})
	}
	if strings.TrimSpace(input.TemplateID) == "" {
		return nil, apperrors.NewValidationError("templateId is required", map[string]any{"field": "templateId"})
	}
	types, err := normalizeTypes(input.EvaluationTypes)
	if err != nil {
		return nil, err
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, apperrors.NewValidationError("endDate must not be before startDate", map[string]any{"field": "endDate"})
	}
	if d := input.SubmissionDeadline; d != nil && (d.Before(input.StartDate) || d.After(input.EndDate)) {
		return nil, apperrors.NewValidationError("submissionDeadline must fall within the cycle", map[string]any{"field": "submissionDeadline"})
	}

	cycle := &domain.EvaluationCycle{
		Title:              title,
		TemplateID:         strings.TrimSpace(input.TemplateID),
		Status:             domain.CycleStatusDraft,
		EvaluationTypes:    types,
		StartDate:          input.StartDate,
		EndDate:            input.EndDate,
		SubmissionDeadline: input.SubmissionDeadline,
	}
	if err := s.cycles.Create(ctx, cycle); err != nil {
		return nil, mapPgError(err, nil)
	}
	s.logger.Info("cycle created", zap.String("cycle_id", cycle.ID), zap.Int("evaluation_types", len(types)))
	return cycle, nil
}

// GetCycle returns one cycle.
func (s *CycleService) GetCycle(ctx context.Context, id string) (*domain.EvaluationCycle, error) {
	cycle, err := s.cycles.GetByID(ctx, id)
	if err != nil {
		return nil, mapPublicationError(err, id)
	}
	return cycle, nil
}

// ListCycles lists cycles, newest first.
func (s *CycleService) ListCycles(ctx context.Context, filter repository.CycleFilter) ([]domain.EvaluationCycle, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	cycles, err := s.cycles.List(ctx, filter)
	if err != nil {
		return nil, mapPgError(err, nil)
	}
	return cycles, nil
}

// CloseCycle moves a PUBLISHED cycle to CLOSED. Closed cycles refuse any further derivation.
func (s *CycleService) CloseCycle(ctx context.Context, actorID, id string) (*domain.EvaluationCycle, error) {
	unlock, err := s.locker.Acquire(ctx, publicationLockKey(id))
	if err != nil {
		return nil, mapPublicationError(err, id)
	}

	var closed *domain.EvaluationCycle
	err = s.tx.InTx(ctx, func(txCtx context.Context) error {
		cycle, err := s.cycles.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if cycle.Status != domain.CycleStatusPublished {
			return fmt.Errorf("%w: cannot close a %s cycle", domain.ErrInvalidCycleState, cycle.Status)
		}
		cycle.Status = domain.CycleStatusClosed
		if err := s.cycles.UpdateState(txCtx, cycle); err != nil {
			return err
		}
		closed = cycle
		return nil
	})
	if uErr := unlock(context.WithoutCancel(ctx)); uErr != nil {
		s.logger.Warn("release publication lock", zap.String("cycle_id", id), zap.Error(uErr))
	}
	if err != nil {
		return nil, mapPublicationError(err, id)
	}

	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventCycleClosed,
			CycleID:   id,
			ActorID:   optionalString(actorID),
			Timestamp: time.Now().UTC(),
			Payload: events.CycleClosedPayload{
				OldStatus: domain.CycleStatusPublished,
				NewStatus: domain.CycleStatusClosed,
			},
		}
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event subscribers failed", zap.String("cycle_id", id), zap.Error(err))
		}
	}
	return closed, nil
}

// ListEvaluations lists the materialized evaluations of a cycle.
func (s *CycleService) ListEvaluations(ctx context.Context, cycleID string, filter repository.EvaluationFilter) ([]domain.Evaluation, error) {
	if _, err := s.cycles.GetByID(ctx, cycleID); err != nil {
		return nil, mapPublicationError(err, cycleID)
	}
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset)
	evaluations, err := s.evaluations.ListByCycle(ctx, cycleID, filter)
	if err != nil {
		return nil, mapPgError(err, map[string]any{"cycleId": cycleID})
	}
	return evaluations, nil
}

// ListPublications returns the publication history of a cycle, newest first.
func (s *CycleService) ListPublications(ctx context.Context, cycleID string) ([]domain.CyclePublication, error) {
	if _, err := s.cycles.GetByID(ctx, cycleID); err != nil {
		return nil, mapPublicationError(err, cycleID)
	}
	history, err := s.publications.ListByCycle(ctx, cycleID)
	if err != nil {
		return nil, mapPgError(err, map[string]any{"cycleId": cycleID})
	}
	return history, nil
}

func normalizeTypes(types []domain.EvaluationType) ([]domain.EvaluationType, error) {
	if len(types) == 0 {
		return nil, apperrors.NewEmptyEvaluationTypes(map[string]any{"field": "evaluationTypes"}, domain.ErrEmptyEvaluationTypes)
	}
	seen := make(map[domain.EvaluationType]struct{}, len(types))
	out := make([]domain.EvaluationType, 0, len(types))
	for _, raw := range types {
		t, err := domain.ParseEvaluationType(string(raw))
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "evaluationTypes"})
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
