package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/persistence"
)

// EvaluationFilter narrows evaluation listings of a cycle.
type EvaluationFilter struct {
	EmployeeID     *string
	EvaluatorID    *string
	EvaluationType *domain.EvaluationType
	Status         *domain.EvaluationStatus
	Limit          int
	Offset         int
}

// EvaluationRepository persists materialized evaluation assignments.
type EvaluationRepository interface {
	DeleteByCycle(ctx context.Context, cycleID string) (int64, error)
	CreateBatch(ctx context.Context, evaluations []domain.Evaluation) (int64, error)
	ListByCycle(ctx context.Context, cycleID string, filter EvaluationFilter) ([]domain.Evaluation, error)
	CountByCycle(ctx context.Context, cycleID string) (int64, error)
}

type evaluationRepository struct {
	pool *pgxpool.Pool
}

// NewEvaluationRepository instantiates repository.
func NewEvaluationRepository(pool *pgxpool.Pool) EvaluationRepository {
	return &evaluationRepository{pool: pool}
}

func (r *evaluationRepository) DeleteByCycle(ctx context.Context, cycleID string) (int64, error) {
	cmd, err := persistence.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM evaluations WHERE cycle_id=$1`, cycleID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

var evaluationCopyColumns = []string{"id", "cycle_id", "employee_id", "evaluator_id", "evaluation_type", "status"}

// CreateBatch streams the rows with COPY. Evaluations without an id get a fresh one.
func (r *evaluationRepository) CreateBatch(ctx context.Context, evaluations []domain.Evaluation) (int64, error) {
	if len(evaluations) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(evaluations))
	for i := range evaluations {
		e := &evaluations[i]
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		ids := make([]any, 0, 4)
		for _, raw := range []string{e.ID, e.CycleID, e.EmployeeID, e.EvaluatorID} {
			id, err := uuid.Parse(raw)
			if err != nil {
				return 0, fmt.Errorf("evaluation %d: invalid id %q: %w", i, raw, err)
			}
			ids = append(ids, id)
		}
		rows = append(rows, append(ids, string(e.EvaluationType), string(e.Status)))
	}

	return persistence.Conn(ctx, r.pool).CopyFrom(ctx,
		pgx.Identifier{"evaluations"},
		evaluationCopyColumns,
		pgx.CopyFromRows(rows),
	)
}

func (r *evaluationRepository) ListByCycle(ctx context.Context, cycleID string, filter EvaluationFilter) ([]domain.Evaluation, error) {
	args := []any{cycleID}
	clauses := []string{"cycle_id=$1"}
	if filter.EmployeeID != nil {
		args = append(args, *filter.EmployeeID)
		clauses = append(clauses, fmt.Sprintf("employee_id=$%d", len(args)))
	}
	if filter.EvaluatorID != nil {
		args = append(args, *filter.EvaluatorID)
		clauses = append(clauses, fmt.Sprintf("evaluator_id=$%d", len(args)))
	}
	if filter.EvaluationType != nil {
		args = append(args, *filter.EvaluationType)
		clauses = append(clauses, fmt.Sprintf("evaluation_type=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}

	query := `
        SELECT id::text, cycle_id::text, employee_id::text, evaluator_id::text, evaluation_type, status,
               overall_rating, created_at, updated_at
        FROM evaluations WHERE ` + strings.Join(clauses, " AND ") + `
        ORDER BY employee_id, evaluation_type, evaluator_id`
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

	var evaluations []domain.Evaluation
	for rows.Next() {
		var e domain.Evaluation
		if err := rows.Scan(
			&e.ID,
			&e.CycleID,
			&e.EmployeeID,
			&e.EvaluatorID,
			&e.EvaluationType,
			&e.Status,
			&e.OverallRating,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, err
		}
		evaluations = append(evaluations, e)
	}
	return evaluations, rows.Err()
}

func (r *evaluationRepository) CountByCycle(ctx context.Context, cycleID string) (int64, error) {
	var count int64
	err := persistence.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM evaluations WHERE cycle_id=$1`, cycleID).Scan(&count)
	return count, err
}
