package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/persistence"
)

// CycleFilter narrows cycle listings.
type CycleFilter struct {
	Status *domain.CycleStatus
	Limit  int
	Offset int
}

// CycleRepository encapsulates evaluation cycle persistence.
type CycleRepository interface {
	Create(ctx context.Context, cycle *domain.EvaluationCycle) error
	GetByID(ctx context.Context, id string) (*domain.EvaluationCycle, error)
	// GetForUpdate row-locks the cycle; it must run inside a transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.EvaluationCycle, error)
	List(ctx context.Context, filter CycleFilter) ([]domain.EvaluationCycle, error)
	UpdateState(ctx context.Context, cycle *domain.EvaluationCycle) error
	// LockPublication takes a transaction scoped advisory lock for the cycle.
	LockPublication(ctx context.Context, cycleID string) error
}

type cycleRepository struct {
	pool *pgxpool.Pool
}

// NewCycleRepository instantiates repository.
func NewCycleRepository(pool *pgxpool.Pool) CycleRepository {
	return &cycleRepository{pool: pool}
}

const cycleColumns = `id::text, title, template_id::text, status, evaluation_types, start_date, end_date,
               submission_deadline, published_at, created_at, updated_at`

func (r *cycleRepository) Create(ctx context.Context, cycle *domain.EvaluationCycle) error {
	const query = `
        INSERT INTO evaluation_cycles (title, template_id, status, evaluation_types, start_date, end_date, submission_deadline)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id::text, created_at, updated_at`
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		cycle.Title,
		cycle.TemplateID,
		cycle.Status,
		typesToStrings(cycle.EvaluationTypes),
		cycle.StartDate,
		cycle.EndDate,
		cycle.SubmissionDeadline,
	).Scan(&cycle.ID, &cycle.CreatedAt, &cycle.UpdatedAt)
}

func (r *cycleRepository) GetByID(ctx context.Context, id string) (*domain.EvaluationCycle, error) {
	query := `SELECT ` + cycleColumns + ` FROM evaluation_cycles WHERE id=$1`
	return scanCycle(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *cycleRepository) GetForUpdate(ctx context.Context, id string) (*domain.EvaluationCycle, error) {
	if _, ok := persistence.TxFromContext(ctx); !ok {
		return nil, fmt.Errorf("cycle repository: GetForUpdate requires a transaction")
	}
	query := `SELECT ` + cycleColumns + ` FROM evaluation_cycles WHERE id=$1 FOR UPDATE`
	return scanCycle(persistence.Conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *cycleRepository) List(ctx context.Context, filter CycleFilter) ([]domain.EvaluationCycle, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	query := `SELECT ` + cycleColumns + ` FROM evaluation_cycles`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []domain.EvaluationCycle
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, *cycle)
	}
	return cycles, rows.Err()
}

func (r *cycleRepository) UpdateState(ctx context.Context, cycle *domain.EvaluationCycle) error {
	const query = `
        UPDATE evaluation_cycles SET status=$1, published_at=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, query, cycle.Status, cycle.PublishedAt, cycle.ID).Scan(&cycle.UpdatedAt)
	if err != nil {
		return err
	}
	return nil
}

func (r *cycleRepository) LockPublication(ctx context.Context, cycleID string) error {
	tx, ok := persistence.TxFromContext(ctx)
	if !ok {
		return fmt.Errorf("cycle repository: LockPublication requires a transaction")
	}
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "cycle-publication:"+cycleID)
	return err
}

func scanCycle(row pgx.Row) (*domain.EvaluationCycle, error) {
	var (
		cycle domain.EvaluationCycle
		types []string
	)
	if err := row.Scan(
		&cycle.ID,
		&cycle.Title,
		&cycle.TemplateID,
		&cycle.Status,
		&types,
		&cycle.StartDate,
		&cycle.EndDate,
		&cycle.SubmissionDeadline,
		&cycle.PublishedAt,
		&cycle.CreatedAt,
		&cycle.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cycle.EvaluationTypes = make([]domain.EvaluationType, 0, len(types))
	for _, t := range types {
		cycle.EvaluationTypes = append(cycle.EvaluationTypes, domain.EvaluationType(t))
	}
	return &cycle, nil
}

func typesToStrings(types []domain.EvaluationType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}
