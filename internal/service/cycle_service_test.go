package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/events"
	"github.com/spec-kit/evaluation-service/internal/repository"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

func newCycleService(h *harness, dispatcher events.Dispatcher) *CycleService {
	return NewCycleService(CycleDependencies{
		CycleRepo:       h.store.Cycles(),
		EvaluationRepo:  h.store.EvaluationRepo(),
		PublicationRepo: h.store.Publications(),
		TxManager:       h.store,
		Locker:          h.locker,
		Dispatcher:      dispatcher,
	})
}

func validInput() CycleCreateInput {
	return CycleCreateInput{
		Title:           "  Annual review  ",
		TemplateID:      "tpl-1",
		EvaluationTypes: []domain.EvaluationType{"self", domain.EvaluationTypePeer, "SELF"},
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateCycle(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	svc := newCycleService(h, nil)

	cycle, err := svc.CreateCycle(context.Background(), validInput())
	require.NoError(t, err)
	require.NotEmpty(t, cycle.ID)
	require.Equal(t, "Annual review", cycle.Title)
	require.Equal(t, domain.CycleStatusDraft, cycle.Status)
	require.Equal(t, []domain.EvaluationType{domain.EvaluationTypeSelf, domain.EvaluationTypePeer}, cycle.EvaluationTypes)

	got, err := svc.GetCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Equal(t, cycle.ID, got.ID)
}

func TestCreateCycle_Validation(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	svc := newCycleService(h, nil)
	ctx := context.Background()

	in := validInput()
	in.EvaluationTypes = nil
	_, err := svc.CreateCycle(ctx, in)
	requireCode(t, err, apperrors.CodeEmptyEvaluationTypes)

	in = validInput()
	in.EvaluationTypes = []domain.EvaluationType{"SKIP_LEVEL"}
	_, err = svc.CreateCycle(ctx, in)
	requireCode(t, err, apperrors.CodeValidationFailed)

	in = validInput()
	in.EndDate = in.StartDate.AddDate(0, 0, -1)
	_, err = svc.CreateCycle(ctx, in)
	requireCode(t, err, apperrors.CodeValidationFailed)

	in = validInput()
	late := in.EndDate.AddDate(0, 0, 1)
	in.SubmissionDeadline = &late
	_, err = svc.CreateCycle(ctx, in)
	requireCode(t, err, apperrors.CodeValidationFailed)

	in = validInput()
	in.Title = " "
	_, err = svc.CreateCycle(ctx, in)
	requireCode(t, err, apperrors.CodeValidationFailed)
}

func TestListCycles_FiltersByStatus(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	svc := newCycleService(h, nil)
	h.seedCycle(domain.CycleStatusDraft, domain.EvaluationTypeSelf)
	published := h.seedCycle(domain.CycleStatusPublished, domain.EvaluationTypeSelf)

	status := domain.CycleStatusPublished
	cycles, err := svc.ListCycles(context.Background(), repository.CycleFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	require.Equal(t, published.ID, cycles[0].ID)

	all, err := svc.ListCycles(context.Background(), repository.CycleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCloseCycle(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	dispatcher := events.NewInMemoryDispatcher()
	var closedEvents []events.Event
	dispatcher.Subscribe(events.EventCycleClosed, func(_ context.Context, e events.Event) error {
		closedEvents = append(closedEvents, e)
		return nil
	})
	svc := newCycleService(h, dispatcher)
	ctx := context.Background()

	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	_, err := svc.CloseCycle(ctx, "admin-1", cycle.ID)
	requireCode(t, err, apperrors.CodeInvalidCycleState)

	_, err = h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)

	closed, err := svc.CloseCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CycleStatusClosed, closed.Status)
	require.NotNil(t, closed.PublishedAt)
	require.Len(t, closedEvents, 1)

	_, err = h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
	requireCode(t, err, apperrors.CodeInvalidCycleState)
	require.Len(t, h.store.Evaluations(cycle.ID), 7)
}

func TestListEvaluationsAndPublications(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	svc := newCycleService(h, nil)
	ctx := context.Background()

	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	_, err := h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	_, err = h.svc.RepublishCycle(ctx, "admin-2", cycle.ID)
	require.NoError(t, err)

	evaluator := "B"
	evaluations, err := svc.ListEvaluations(ctx, cycle.ID, repository.EvaluationFilter{EvaluatorID: &evaluator})
	require.NoError(t, err)
	require.Len(t, evaluations, 3) // SELF, MANAGER of C, SUBORDINATE of A

	history, err := svc.ListPublications(ctx, cycle.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.PublicationActionRepublish, history[0].Action)
	require.Equal(t, 7, history[0].EvaluationsRemoved)

	_, err = svc.ListEvaluations(ctx, "missing", repository.EvaluationFilter{})
	requireCode(t, err, apperrors.CodeNotFound)
}
