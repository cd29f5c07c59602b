// Package testutil provides in-memory implementations of the repositories for tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
	"github.com/spec-kit/evaluation-service/internal/repository"
)

// Operation names accepted by FailNext.
const (
	OpGetHierarchySnapshot = "GetHierarchySnapshot"
	OpDeleteByCycle        = "DeleteByCycle"
	OpCreateBatch          = "CreateBatch"
	OpUpdateState          = "UpdateState"
	OpCreatePublication    = "CreatePublication"
)

type state struct {
	positions    []domain.Position
	bindings     map[string][]string
	cycles       map[string]domain.EvaluationCycle
	evaluations  map[string][]domain.Evaluation
	publications []domain.CyclePublication
}

func (s *state) clone() *state {
	out := &state{
		positions:    append([]domain.Position(nil), s.positions...),
		bindings:     make(map[string][]string, len(s.bindings)),
		cycles:       make(map[string]domain.EvaluationCycle, len(s.cycles)),
		evaluations:  make(map[string][]domain.Evaluation, len(s.evaluations)),
		publications: append([]domain.CyclePublication(nil), s.publications...),
	}
	for k, v := range s.bindings {
		out.bindings[k] = append([]string(nil), v...)
	}
	for k, v := range s.cycles {
		out.cycles[k] = copyCycle(v)
	}
	for k, v := range s.evaluations {
		out.evaluations[k] = append([]domain.Evaluation(nil), v...)
	}
	return out
}

// MemoryStore keeps every table in memory. Transactions are serialized and roll back by
// restoring a copy of the state taken when they began.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.Mutex
	st       *state
	failures map[string]error

	// NowFunc allows tests to control timestamps.
	NowFunc func() time.Time
}

// NewMemoryStore returns a MemoryStore with empty state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		st: &state{
			bindings:    make(map[string][]string),
			cycles:      make(map[string]domain.EvaluationCycle),
			evaluations: make(map[string][]domain.Evaluation),
		},
		failures: make(map[string]error),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (m *MemoryStore) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc()
	}
	return time.Now().UTC()
}

type txKey struct{}

// InTx implements persistence.TxManager.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	saved := m.st.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.st = saved
		m.mu.Unlock()
		return err
	}
	return nil
}

// FailNext makes the next call of op return err.
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *MemoryStore) takeFailure(op string) error {
	err, ok := m.failures[op]
	if !ok {
		return nil
	}
	delete(m.failures, op)
	return err
}

func requireTx(ctx context.Context, op string) error {
	if ctx.Value(txKey{}) == nil {
		return errors.New("memory store: " + op + " requires a transaction")
	}
	return nil
}

// SetHierarchy replaces positions and bindings.
func (m *MemoryStore) SetHierarchy(src orgchart.Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.positions = append([]domain.Position(nil), src.Positions...)
	m.st.bindings = make(map[string][]string, len(src.Bindings))
	for k, v := range src.Bindings {
		m.st.bindings[k] = append([]string(nil), v...)
	}
}

// SeedCycle stores cycle as is, assigning an id when empty.
func (m *MemoryStore) SeedCycle(cycle domain.EvaluationCycle) domain.EvaluationCycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cycle.ID == "" {
		cycle.ID = uuid.NewString()
	}
	if cycle.CreatedAt.IsZero() {
		cycle.CreatedAt = m.now()
		cycle.UpdatedAt = cycle.CreatedAt
	}
	m.st.cycles[cycle.ID] = copyCycle(cycle)
	return cycle
}

// Evaluations returns the stored evaluations of a cycle.
func (m *MemoryStore) Evaluations(cycleID string) []domain.Evaluation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Evaluation(nil), m.st.evaluations[cycleID]...)
}

// Cycle returns the stored cycle.
func (m *MemoryStore) Cycle(id string) (domain.EvaluationCycle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.cycles[id]
	return copyCycle(c), ok
}

// Org returns the OrgRepository view.
func (m *MemoryStore) Org() repository.OrgRepository { return orgRepo{m} }

// Cycles returns the CycleRepository view.
func (m *MemoryStore) Cycles() repository.CycleRepository { return cycleRepo{m} }

// EvaluationRepo returns the EvaluationRepository view.
func (m *MemoryStore) EvaluationRepo() repository.EvaluationRepository { return evaluationRepo{m} }

// Publications returns the PublicationRepository view.
func (m *MemoryStore) Publications() repository.PublicationRepository { return publicationRepo{m} }

type orgRepo struct{ m *MemoryStore }

func (r orgRepo) GetHierarchySnapshot(context.Context) (orgchart.Source, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.takeFailure(OpGetHierarchySnapshot); err != nil {
		return orgchart.Source{}, err
	}
	src := orgchart.Source{
		Positions: append([]domain.Position(nil), r.m.st.positions...),
		Bindings:  make(map[string][]string, len(r.m.st.bindings)),
	}
	for k, v := range r.m.st.bindings {
		src.Bindings[k] = append([]string(nil), v...)
	}
	return src, nil
}

type cycleRepo struct{ m *MemoryStore }

func (r cycleRepo) Create(_ context.Context, cycle *domain.EvaluationCycle) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cycle.ID = uuid.NewString()
	cycle.CreatedAt = r.m.now()
	cycle.UpdatedAt = cycle.CreatedAt
	r.m.st.cycles[cycle.ID] = copyCycle(*cycle)
	return nil
}

func (r cycleRepo) GetByID(_ context.Context, id string) (*domain.EvaluationCycle, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.st.cycles[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := copyCycle(c)
	return &out, nil
}

func (r cycleRepo) GetForUpdate(ctx context.Context, id string) (*domain.EvaluationCycle, error) {
	if err := requireTx(ctx, "GetForUpdate"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r cycleRepo) List(_ context.Context, filter repository.CycleFilter) ([]domain.EvaluationCycle, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.EvaluationCycle
	for _, c := range r.m.st.cycles {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, copyCycle(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r cycleRepo) UpdateState(_ context.Context, cycle *domain.EvaluationCycle) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.takeFailure(OpUpdateState); err != nil {
		return err
	}
	stored, ok := r.m.st.cycles[cycle.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.Status = cycle.Status
	stored.PublishedAt = cycle.PublishedAt
	stored.UpdatedAt = r.m.now()
	cycle.UpdatedAt = stored.UpdatedAt
	r.m.st.cycles[cycle.ID] = copyCycle(stored)
	return nil
}

func (r cycleRepo) LockPublication(ctx context.Context, _ string) error {
	return requireTx(ctx, "LockPublication")
}

type evaluationRepo struct{ m *MemoryStore }

func (r evaluationRepo) DeleteByCycle(_ context.Context, cycleID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.takeFailure(OpDeleteByCycle); err != nil {
		return 0, err
	}
	n := len(r.m.st.evaluations[cycleID])
	delete(r.m.st.evaluations, cycleID)
	return int64(n), nil
}

// CreateBatch enforces the (cycle, employee, evaluator, type) unique index like postgres does.
func (r evaluationRepo) CreateBatch(_ context.Context, evaluations []domain.Evaluation) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.takeFailure(OpCreateBatch); err != nil {
		return 0, err
	}

	type key struct{ cycle, employee, evaluator, kind string }
	seen := make(map[key]struct{})
	for _, rows := range r.m.st.evaluations {
		for _, e := range rows {
			seen[key{e.CycleID, e.EmployeeID, e.EvaluatorID, string(e.EvaluationType)}] = struct{}{}
		}
	}
	staged := make(map[string][]domain.Evaluation)
	for _, e := range evaluations {
		k := key{e.CycleID, e.EmployeeID, e.EvaluatorID, string(e.EvaluationType)}
		if _, dup := seen[k]; dup {
			return 0, &pgconn.PgError{Code: "23505", ConstraintName: "uq_evaluations_assignment"}
		}
		seen[k] = struct{}{}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		e.CreatedAt = r.m.now()
		e.UpdatedAt = e.CreatedAt
		staged[e.CycleID] = append(staged[e.CycleID], e)
	}
	for cycleID, rows := range staged {
		r.m.st.evaluations[cycleID] = append(r.m.st.evaluations[cycleID], rows...)
	}
	return int64(len(evaluations)), nil
}

func (r evaluationRepo) ListByCycle(_ context.Context, cycleID string, filter repository.EvaluationFilter) ([]domain.Evaluation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Evaluation
	for _, e := range r.m.st.evaluations[cycleID] {
		if filter.EmployeeID != nil && e.EmployeeID != *filter.EmployeeID {
			continue
		}
		if filter.EvaluatorID != nil && e.EvaluatorID != *filter.EvaluatorID {
			continue
		}
		if filter.EvaluationType != nil && e.EvaluationType != *filter.EvaluationType {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if a.EvaluationType != b.EvaluationType {
			return a.EvaluationType < b.EvaluationType
		}
		return a.EvaluatorID < b.EvaluatorID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r evaluationRepo) CountByCycle(_ context.Context, cycleID string) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return int64(len(r.m.st.evaluations[cycleID])), nil
}

type publicationRepo struct{ m *MemoryStore }

func (r publicationRepo) Create(_ context.Context, p *domain.CyclePublication) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.takeFailure(OpCreatePublication); err != nil {
		return err
	}
	p.ID = uuid.NewString()
	p.CreatedAt = r.m.now()
	r.m.st.publications = append(r.m.st.publications, *p)
	return nil
}

func (r publicationRepo) ListByCycle(_ context.Context, cycleID string) ([]domain.CyclePublication, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.CyclePublication
	for i := len(r.m.st.publications) - 1; i >= 0; i-- {
		if p := r.m.st.publications[i]; p.CycleID == cycleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func copyCycle(c domain.EvaluationCycle) domain.EvaluationCycle {
	c.EvaluationTypes = append([]domain.EvaluationType(nil), c.EvaluationTypes...)
	if c.PublishedAt != nil {
		t := *c.PublishedAt
		c.PublishedAt = &t
	}
	if c.SubmissionDeadline != nil {
		t := *c.SubmissionDeadline
		c.SubmissionDeadline = &t
	}
	return c
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
