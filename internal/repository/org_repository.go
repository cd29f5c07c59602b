package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
	"github.com/spec-kit/evaluation-service/internal/persistence"
)

// OrgRepository reads the org hierarchy owned by the HR module.
type OrgRepository interface {
	GetHierarchySnapshot(ctx context.Context) (orgchart.Source, error)
}

type orgRepository struct {
	pool *pgxpool.Pool
}

// NewOrgRepository instantiates repository.
func NewOrgRepository(pool *pgxpool.Pool) OrgRepository {
	return &orgRepository{pool: pool}
}

// hierarchyRow is one position joined with at most one of its holders.
type hierarchyRow struct {
	PositionID       string
	Title            string
	ParentPositionID *string
	IsAggregate      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	EmployeeID       *string
}

// GetHierarchySnapshot loads every position together with its bound employees. Positions and
// bindings come from a single statement, so they always describe the same committed state
// regardless of the isolation level of the surrounding transaction.
func (r *orgRepository) GetHierarchySnapshot(ctx context.Context) (orgchart.Source, error) {
	const query = `
        SELECT p.id::text, p.title, p.parent_position_id::text, p.is_aggregate,
               p.created_at, p.updated_at, e.id::text
        FROM positions p
        LEFT JOIN employees e ON e.position_id = p.id
        ORDER BY p.id, e.id`
	rows, err := persistence.Conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return orgchart.Source{}, err
	}
	joined, err := pgx.CollectRows(rows, pgx.RowToStructByPos[hierarchyRow])
	if err != nil {
		return orgchart.Source{}, err
	}
	return assembleHierarchy(joined), nil
}

// assembleHierarchy folds rows ordered by position id back into positions and bindings.
func assembleHierarchy(rows []hierarchyRow) orgchart.Source {
	src := orgchart.Source{Bindings: make(map[string][]string)}
	for i, row := range rows {
		if i == 0 || rows[i-1].PositionID != row.PositionID {
			src.Positions = append(src.Positions, domain.Position{
				ID:               row.PositionID,
				Title:            row.Title,
				ParentPositionID: row.ParentPositionID,
				IsAggregate:      row.IsAggregate,
				CreatedAt:        row.CreatedAt,
				UpdatedAt:        row.UpdatedAt,
			})
		}
		if row.EmployeeID != nil {
			src.Bindings[row.PositionID] = append(src.Bindings[row.PositionID], *row.EmployeeID)
		}
	}
	return src
}
