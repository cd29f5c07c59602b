package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EvaluationStatus is owned by the downstream submission workflow.
type EvaluationStatus string

const (
	EvaluationStatusDraft     EvaluationStatus = "DRAFT"
	EvaluationStatusSubmitted EvaluationStatus = "SUBMITTED"
	EvaluationStatusReviewed  EvaluationStatus = "REVIEWED"
	EvaluationStatusApproved  EvaluationStatus = "APPROVED"
	EvaluationStatusRejected  EvaluationStatus = "REJECTED"
)

// Evaluation is a materialized assignment: EvaluatorID evaluates EmployeeID within a cycle.
type Evaluation struct {
	ID             string
	CycleID        string
	EmployeeID     string
	EvaluatorID    string
	EvaluationType EvaluationType
	Status         EvaluationStatus
	OverallRating  decimal.NullDecimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
