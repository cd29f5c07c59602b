package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/evaluation-service/internal/assignment"
	"github.com/spec-kit/evaluation-service/internal/config"
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/events"
	"github.com/spec-kit/evaluation-service/internal/lock"
	"github.com/spec-kit/evaluation-service/internal/observability"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
	"github.com/spec-kit/evaluation-service/internal/testutil"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	svc    *PublicationService
	store  *testutil.MemoryStore
	clock  *fakeClock
	locker *lock.LocalLocker

	mu     sync.Mutex
	events []events.Event
}

func (h *harness) recorded() []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.events...)
}

func newHarness(t *testing.T, policy config.RepublishTimestampPolicy) *harness {
	t.Helper()
	h := &harness{
		store:  testutil.NewMemoryStore(),
		clock:  &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)},
		locker: lock.NewLocalLocker(),
	}
	h.store.NowFunc = h.clock.Now

	dispatcher := events.NewInMemoryDispatcher()
	record := func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, e)
		return nil
	}
	dispatcher.Subscribe(events.EventCyclePublished, record)
	dispatcher.Subscribe(events.EventCycleRepublished, record)

	h.svc = NewPublicationService(PublicationDependencies{
		CycleRepo:       h.store.Cycles(),
		EvaluationRepo:  h.store.EvaluationRepo(),
		PublicationRepo: h.store.Publications(),
		OrgRepo:         h.store.Org(),
		TxManager:       h.store,
		Locker:          h.locker,
		Dispatcher:      dispatcher,
		Policy:          assignment.DefaultPolicy(),
		TimestampPolicy: policy,
		Metrics:         observability.NewMetrics(),
		Clock:           h.clock.Now,
	})
	return h
}

func position(id, parent string, aggregate bool) domain.Position {
	p := domain.Position{ID: id, Title: id, IsAggregate: aggregate}
	if parent != "" {
		p.ParentPositionID = &parent
	}
	return p
}

// chain A(root) <- B <- C, one holder each.
func chainHierarchy() orgchart.Source {
	return orgchart.Source{
		Positions: []domain.Position{
			position("pa", "", false),
			position("pb", "pa", false),
			position("pc", "pb", false),
		},
		Bindings: map[string][]string{"pa": {"A"}, "pb": {"B"}, "pc": {"C"}},
	}
}

func (h *harness) seedCycle(status domain.CycleStatus, types ...domain.EvaluationType) domain.EvaluationCycle {
	return h.store.SeedCycle(domain.EvaluationCycle{
		Title:           "2026 H1 review",
		TemplateID:      "tpl-1",
		Status:          status,
		EvaluationTypes: types,
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
	})
}

func storedTriples(store *testutil.MemoryStore, cycleID string) assignment.TargetSet {
	var triples []assignment.Triple
	for _, e := range store.Evaluations(cycleID) {
		triples = append(triples, assignment.Triple{EmployeeID: e.EmployeeID, EvaluatorID: e.EvaluatorID, EvaluationType: e.EvaluationType})
	}
	return assignment.NewTargetSet(triples...)
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	var de *apperrors.DomainError
	require.ErrorAs(t, err, &de)
	require.Equal(t, code, de.Code)
	return de
}

var chainTypes = []domain.EvaluationType{domain.EvaluationTypeManager, domain.EvaluationTypeSubordinate, domain.EvaluationTypeSelf}

func TestPublishCycle_MaterializesDerivedSet(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)

	res, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
	require.NoError(t, err)
	require.Equal(t, 7, res.EvaluationsCreated)
	require.Zero(t, res.EvaluationsRemoved)
	require.Equal(t, domain.CycleStatusPublished, res.Status)
	require.NotNil(t, res.PublishedAt)
	require.True(t, res.PublishedAt.Equal(h.clock.Now()))

	expected := assignment.NewTargetSet(
		assignment.Triple{EmployeeID: "B", EvaluatorID: "A", EvaluationType: domain.EvaluationTypeManager},
		assignment.Triple{EmployeeID: "C", EvaluatorID: "B", EvaluationType: domain.EvaluationTypeManager},
		assignment.Triple{EmployeeID: "A", EvaluatorID: "A", EvaluationType: domain.EvaluationTypeSelf},
		assignment.Triple{EmployeeID: "B", EvaluatorID: "B", EvaluationType: domain.EvaluationTypeSelf},
		assignment.Triple{EmployeeID: "C", EvaluatorID: "C", EvaluationType: domain.EvaluationTypeSelf},
		assignment.Triple{EmployeeID: "A", EvaluatorID: "B", EvaluationType: domain.EvaluationTypeSubordinate},
		assignment.Triple{EmployeeID: "B", EvaluatorID: "C", EvaluationType: domain.EvaluationTypeSubordinate},
	)
	require.True(t, expected.Equal(storedTriples(h.store, cycle.ID)))
	for _, e := range h.store.Evaluations(cycle.ID) {
		require.Equal(t, domain.EvaluationStatusDraft, e.Status)
		require.NotEmpty(t, e.ID)
	}

	stored, _ := h.store.Cycle(cycle.ID)
	require.Equal(t, domain.CycleStatusPublished, stored.Status)

	history, err := h.store.Publications().ListByCycle(context.Background(), cycle.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, domain.PublicationActionPublish, history[0].Action)
	require.Equal(t, 7, history[0].EvaluationsCreated)
	require.Equal(t, "admin-1", *history[0].ActorID)

	recorded := h.recorded()
	require.Len(t, recorded, 1)
	require.Equal(t, events.EventCyclePublished, recorded[0].Type)
	payload, ok := recorded[0].Payload.(events.CyclePublishedPayload)
	require.True(t, ok)
	require.Len(t, payload.Triples, 7)
}

func TestPublishCycle_RejectsWrongSourceState(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())

	for _, status := range []domain.CycleStatus{domain.CycleStatusPublished, domain.CycleStatusClosed} {
		cycle := h.seedCycle(status, chainTypes...)
		_, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
		de := requireCode(t, err, apperrors.CodeInvalidCycleState)
		require.Equal(t, 409, de.HTTPStatus)
		require.ErrorIs(t, err, domain.ErrInvalidCycleState)
		require.Empty(t, h.store.Evaluations(cycle.ID))

		stored, _ := h.store.Cycle(cycle.ID)
		require.Equal(t, status, stored.Status)
	}
	require.Empty(t, h.recorded())
}

func TestRepublishCycle_RejectsDraftAndClosed(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())

	for _, status := range []domain.CycleStatus{domain.CycleStatusDraft, domain.CycleStatusClosed} {
		cycle := h.seedCycle(status, chainTypes...)
		_, err := h.svc.RepublishCycle(context.Background(), "admin-1", cycle.ID)
		requireCode(t, err, apperrors.CodeInvalidCycleState)
		require.Empty(t, h.store.Evaluations(cycle.ID))
	}
}

func TestRepublishCycle_IsIdempotentAndPreservesPublishedAt(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	ctx := context.Background()

	first, err := h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	afterPublish := storedTriples(h.store, cycle.ID)

	h.clock.Advance(time.Hour)
	second, err := h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	afterFirstRepublish := storedTriples(h.store, cycle.ID)

	h.clock.Advance(time.Hour)
	third, err := h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)

	require.Equal(t, first.EvaluationsCreated, second.EvaluationsCreated)
	require.Equal(t, second.EvaluationsCreated, third.EvaluationsCreated)
	require.Equal(t, 7, second.EvaluationsRemoved)
	require.Equal(t, 7, third.EvaluationsRemoved)
	require.True(t, afterPublish.Equal(afterFirstRepublish))
	require.True(t, afterFirstRepublish.Equal(storedTriples(h.store, cycle.ID)))
	require.Len(t, h.store.Evaluations(cycle.ID), 7)

	require.True(t, third.PublishedAt.Equal(*first.PublishedAt))

	recorded := h.recorded()
	require.Len(t, recorded, 3)
	require.Equal(t, events.EventCycleRepublished, recorded[2].Type)
}

func TestRepublishCycle_RefreshPolicyMovesPublishedAt(t *testing.T) {
	h := newHarness(t, config.RepublishRefreshPublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	ctx := context.Background()

	first, err := h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)

	h.clock.Advance(24 * time.Hour)
	second, err := h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	require.True(t, second.PublishedAt.Equal(first.PublishedAt.Add(24*time.Hour)))
}

func TestRepublishCycle_ReplacesTriplesAfterHierarchyChange(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	ctx := context.Background()

	_, err := h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)

	// C now reports to A directly.
	changed := chainHierarchy()
	changed.Positions[2] = position("pc", "pa", false)
	h.store.SetHierarchy(changed)

	res, err := h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)

	stored := storedTriples(h.store, cycle.ID)
	require.Equal(t, res.EvaluationsCreated, stored.Len())
	require.Len(t, h.store.Evaluations(cycle.ID), stored.Len())
	require.False(t, stored.Contains(assignment.Triple{EmployeeID: "C", EvaluatorID: "B", EvaluationType: domain.EvaluationTypeManager}))
	require.False(t, stored.Contains(assignment.Triple{EmployeeID: "B", EvaluatorID: "C", EvaluationType: domain.EvaluationTypeSubordinate}))
	require.True(t, stored.Contains(assignment.Triple{EmployeeID: "C", EvaluatorID: "A", EvaluationType: domain.EvaluationTypeManager}))
	require.True(t, stored.Contains(assignment.Triple{EmployeeID: "A", EvaluatorID: "C", EvaluationType: domain.EvaluationTypeSubordinate}))
}

func TestPublishCycle_EmptyEvaluationTypes(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft)

	_, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
	requireCode(t, err, apperrors.CodeEmptyEvaluationTypes)
	require.ErrorIs(t, err, domain.ErrEmptyEvaluationTypes)

	stored, _ := h.store.Cycle(cycle.ID)
	require.Equal(t, domain.CycleStatusDraft, stored.Status)
	require.Nil(t, stored.PublishedAt)
}

func TestPublishCycle_MalformedHierarchy(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(orgchart.Source{
		Positions: []domain.Position{position("x", "y", false), position("y", "x", false)},
		Bindings:  map[string][]string{"x": {"A"}, "y": {"B"}},
	})
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)

	_, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
	de := requireCode(t, err, apperrors.CodeMalformedHierarchy)
	require.Equal(t, 422, de.HTTPStatus)

	stored, _ := h.store.Cycle(cycle.ID)
	require.Equal(t, domain.CycleStatusDraft, stored.Status)
	require.Empty(t, h.store.Evaluations(cycle.ID))
}

func TestPublishCycle_SharedSingularPositionIsMalformed(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(orgchart.Source{
		Positions: []domain.Position{position("pa", "", false), position("pb", "pa", false)},
		Bindings:  map[string][]string{"pa": {"A"}, "pb": {"B", "C"}},
	})
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)

	_, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
	requireCode(t, err, apperrors.CodeMalformedHierarchy)
	require.Empty(t, h.store.Evaluations(cycle.ID))
}

func TestPublishCycle_NoMatchesIsNotAnError(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(orgchart.Source{
		Positions: []domain.Position{position("solo", "", false)},
		Bindings:  map[string][]string{"solo": {"A"}},
	})
	cycle := h.seedCycle(domain.CycleStatusDraft, domain.EvaluationTypeManager, domain.EvaluationTypeSubordinate)

	res, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
	require.NoError(t, err)
	require.Zero(t, res.EvaluationsCreated)
	require.Equal(t, domain.CycleStatusPublished, res.Status)
}

func TestPublishCycle_UnknownCycle(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	_, err := h.svc.PublishCycle(context.Background(), "admin-1", "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestRepublishCycle_RollsBackOnInsertFailure(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	ctx := context.Background()

	_, err := h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	before := h.store.Evaluations(cycle.ID)

	changed := chainHierarchy()
	changed.Positions[2] = position("pc", "pa", false)
	h.store.SetHierarchy(changed)
	h.store.FailNext(testutil.OpCreateBatch, errors.New("connection reset"))

	_, err = h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
	de := requireCode(t, err, apperrors.CodeReconciliationFailure)
	require.Equal(t, 500, de.HTTPStatus)
	require.ErrorIs(t, err, domain.ErrReconciliationFailure)

	require.ElementsMatch(t, before, h.store.Evaluations(cycle.ID))
	history, err := h.store.Publications().ListByCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Len(t, h.recorded(), 1)
}

func TestPublishCycle_RollsBackOnLateFailure(t *testing.T) {
	for _, op := range []string{testutil.OpUpdateState, testutil.OpCreatePublication} {
		t.Run(op, func(t *testing.T) {
			h := newHarness(t, config.RepublishPreservePublishedAt)
			h.store.SetHierarchy(chainHierarchy())
			cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
			h.store.FailNext(op, errors.New("disk full"))

			_, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
			requireCode(t, err, apperrors.CodeReconciliationFailure)

			require.Empty(t, h.store.Evaluations(cycle.ID))
			stored, _ := h.store.Cycle(cycle.ID)
			require.Equal(t, domain.CycleStatusDraft, stored.Status)
			require.Nil(t, stored.PublishedAt)

			res, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
			require.NoError(t, err)
			require.Equal(t, 7, res.EvaluationsCreated)
		})
	}
}

func TestRepublishCycle_ConcurrentCallsSerialize(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	ctx := context.Background()

	_, err := h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]PublicationResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.RepublishCycle(ctx, "admin-1", cycle.ID)
		}(i)
	}
	wg.Wait()

	for i := range results {
		assert.NoError(t, errs[i])
		assert.Equal(t, 7, results[i].EvaluationsCreated)
		assert.Equal(t, 7, results[i].EvaluationsRemoved)
	}
	require.Len(t, h.store.Evaluations(cycle.ID), 7)
}

func TestPublishCycle_LockHeldElsewhere(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)

	unlock, err := h.locker.Acquire(context.Background(), publicationLockKey(cycle.ID))
	require.NoError(t, err)
	defer unlock(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	requireCode(t, err, apperrors.CodeConflict)
	require.Empty(t, h.store.Evaluations(cycle.ID))
}

func TestPublishCycle_ReleasesLockBeforeSubscribersRun(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)

	var lockErr error
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.Subscribe(events.EventCyclePublished, func(_ context.Context, _ events.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		unlock, err := h.locker.Acquire(ctx, publicationLockKey(cycle.ID))
		if err != nil {
			lockErr = err
			return err
		}
		return unlock(context.Background())
	})
	h.svc.dispatcher = dispatcher

	_, err := h.svc.PublishCycle(context.Background(), "admin-1", cycle.ID)
	require.NoError(t, err)
	require.NoError(t, lockErr, "subscriber could not take the cycle lock")

	// Nothing else holds the lock once the call has returned.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	unlock, err := h.locker.Acquire(ctx, publicationLockKey(cycle.ID))
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}

func TestPreviewCycle(t *testing.T) {
	h := newHarness(t, config.RepublishPreservePublishedAt)
	h.store.SetHierarchy(chainHierarchy())
	cycle := h.seedCycle(domain.CycleStatusDraft, chainTypes...)
	ctx := context.Background()

	preview, err := h.svc.PreviewCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.Equal(t, 7, preview.Total)
	require.Equal(t, 3, preview.CountByType[domain.EvaluationTypeSelf])
	require.Equal(t, 2, preview.CountByType[domain.EvaluationTypeManager])
	require.Equal(t, 2, preview.CountByType[domain.EvaluationTypeSubordinate])
	require.Zero(t, preview.ExistingEvaluations)
	require.Len(t, preview.Triples, 7)
	require.Empty(t, h.store.Evaluations(cycle.ID))

	_, err = h.svc.PublishCycle(ctx, "admin-1", cycle.ID)
	require.NoError(t, err)
	preview, err = h.svc.PreviewCycle(ctx, cycle.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), preview.ExistingEvaluations)

	closed := h.seedCycle(domain.CycleStatusClosed, chainTypes...)
	_, err = h.svc.PreviewCycle(ctx, closed.ID)
	requireCode(t, err, apperrors.CodeInvalidCycleState)
}
