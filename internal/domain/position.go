package domain

import "time"

// Position is a node of the organizational tree.
type Position struct {
	ID               string
	Title            string
	ParentPositionID *string
	// IsAggregate marks a seat that several employees may hold at once.
	IsAggregate bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsRoot reports whether the position has no parent.
func (p Position) IsRoot() bool {
	return p.ParentPositionID == nil || *p.ParentPositionID == ""
}
