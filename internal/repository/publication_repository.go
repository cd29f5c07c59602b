package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/persistence"
)

// PublicationRepository stores the publication history of cycles.
type PublicationRepository interface {
	Create(ctx context.Context, publication *domain.CyclePublication) error
	ListByCycle(ctx context.Context, cycleID string) ([]domain.CyclePublication, error)
}

type publicationRepository struct {
	pool *pgxpool.Pool
}

// NewPublicationRepository instantiates repository.
func NewPublicationRepository(pool *pgxpool.Pool) PublicationRepository {
	return &publicationRepository{pool: pool}
}

func (r *publicationRepository) Create(ctx context.Context, publication *domain.CyclePublication) error {
	const query = `
        INSERT INTO cycle_publications (cycle_id, action, evaluations_created, evaluations_removed, actor_id)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id::text, created_at`
	return persistence.Conn(ctx, r.pool).QueryRow(ctx, query,
		publication.CycleID,
		publication.Action,
		publication.EvaluationsCreated,
		publication.EvaluationsRemoved,
		publication.ActorID,
	).Scan(&publication.ID, &publication.CreatedAt)
}

func (r *publicationRepository) ListByCycle(ctx context.Context, cycleID string) ([]domain.CyclePublication, error) {
	const query = `
        SELECT id::text, cycle_id::text, action, evaluations_created, evaluations_removed, actor_id, created_at
        FROM cycle_publications WHERE cycle_id=$1
        ORDER BY created_at DESC, id`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CyclePublication
	for rows.Next() {
		var p domain.CyclePublication
		if err := rows.Scan(&p.ID, &p.CycleID, &p.Action, &p.EvaluationsCreated, &p.EvaluationsRemoved, &p.ActorID, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
