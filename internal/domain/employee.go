package domain

import "time"

// Employee is a person bound to at most one position.
type Employee struct {
	ID         string
	FullName   string
	Email      string
	PositionID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
