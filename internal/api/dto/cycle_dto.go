package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/service"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

const dateLayout = "2006-01-02"

// CreateCycleRequest payload.
type CreateCycleRequest struct {
	Title              string   `json:"title" validate:"required,max=200"`
	TemplateID         string   `json:"templateId" validate:"required"`
	EvaluationTypes    []string `json:"evaluationTypes" validate:"dive,oneof=SELF MANAGER SUBORDINATE PEER"`
	StartDate          string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate            string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	SubmissionDeadline *string  `json:"submissionDeadline" validate:"omitempty,datetime=2006-01-02"`
}

// Normalize trims strings and upper-cases evaluation types.
func (r *CreateCycleRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.TemplateID = strings.TrimSpace(r.TemplateID)
	for i, t := range r.EvaluationTypes {
		r.EvaluationTypes[i] = strings.ToUpper(strings.TrimSpace(t))
	}
}

// ToInput validates the request and converts it for the cycle service.
func (r *CreateCycleRequest) ToInput() (service.CycleCreateInput, error) {
	r.Normalize()
	if err := Validate(r); err != nil {
		return service.CycleCreateInput{}, err
	}

	start, err := time.Parse(dateLayout, r.StartDate)
	if err != nil {
		return service.CycleCreateInput{}, apperrors.NewValidationError("invalid startDate", nil)
	}
	end, err := time.Parse(dateLayout, r.EndDate)
	if err != nil {
		return service.CycleCreateInput{}, apperrors.NewValidationError("invalid endDate", nil)
	}
	input := service.CycleCreateInput{
		Title:      r.Title,
		TemplateID: r.TemplateID,
		StartDate:  start,
		EndDate:    end,
	}
	if r.SubmissionDeadline != nil {
		deadline, err := time.Parse(dateLayout, *r.SubmissionDeadline)
		if err != nil {
			return service.CycleCreateInput{}, apperrors.NewValidationError("invalid submissionDeadline", nil)
		}
		input.SubmissionDeadline = &deadline
	}
	for _, t := range r.EvaluationTypes {
		input.EvaluationTypes = append(input.EvaluationTypes, domain.EvaluationType(t))
	}
	return input, nil
}

// CycleListQuery filters GET /cycles.
type CycleListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=DRAFT PUBLISHED CLOSED"`
	Limit  int    `query:"limit" validate:"gte=0,lte=500"`
	Offset int    `query:"offset" validate:"gte=0"`
}

// CycleResponse represents an evaluation cycle.
type CycleResponse struct {
	ID                 string                  `json:"id"`
	Title              string                  `json:"title"`
	TemplateID         string                  `json:"templateId"`
	Status             domain.CycleStatus      `json:"status"`
	EvaluationTypes    []domain.EvaluationType `json:"evaluationTypes"`
	StartDate          string                  `json:"startDate"`
	EndDate            string                  `json:"endDate"`
	SubmissionDeadline *string                 `json:"submissionDeadline"`
	PublishedAt        *time.Time              `json:"publishedAt"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt"`
}

// NewCycleResponse maps a domain cycle.
func NewCycleResponse(c *domain.EvaluationCycle) CycleResponse {
	resp := CycleResponse{
		ID:              c.ID,
		Title:           c.Title,
		TemplateID:      c.TemplateID,
		Status:          c.Status,
		EvaluationTypes: c.EvaluationTypes,
		StartDate:       c.StartDate.Format(dateLayout),
		EndDate:         c.EndDate.Format(dateLayout),
		PublishedAt:     c.PublishedAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	if resp.EvaluationTypes == nil {
		resp.EvaluationTypes = []domain.EvaluationType{}
	}
	if c.SubmissionDeadline != nil {
		d := c.SubmissionDeadline.Format(dateLayout)
		resp.SubmissionDeadline = &d
	}
	return resp
}

// EvaluationListQuery filters GET /cycles/:id/evaluations.
type EvaluationListQuery struct {
	EmployeeID     string `query:"employeeId"`
	EvaluatorID    string `query:"evaluatorId"`
	EvaluationType string `query:"evaluationType" validate:"omitempty,oneof=SELF MANAGER SUBORDINATE PEER"`
	Status         string `query:"status" validate:"omitempty,oneof=DRAFT SUBMITTED REVIEWED APPROVED REJECTED"`
	Limit          int    `query:"limit" validate:"gte=0,lte=500"`
	Offset         int    `query:"offset" validate:"gte=0"`
}

// EvaluationResponse represents a materialized assignment.
type EvaluationResponse struct {
	ID             string                  `json:"id"`
	CycleID        string                  `json:"cycleId"`
	EmployeeID     string                  `json:"employeeId"`
	EvaluatorID    string                  `json:"evaluatorId"`
	EvaluationType domain.EvaluationType   `json:"evaluationType"`
	Status         domain.EvaluationStatus `json:"status"`
	OverallRating  decimal.NullDecimal     `json:"overallRating"`
	CreatedAt      time.Time               `json:"createdAt"`
}

// NewEvaluationResponse maps a domain evaluation.
func NewEvaluationResponse(e *domain.Evaluation) EvaluationResponse {
	return EvaluationResponse{
		ID:             e.ID,
		CycleID:        e.CycleID,
		EmployeeID:     e.EmployeeID,
		EvaluatorID:    e.EvaluatorID,
		EvaluationType: e.EvaluationType,
		Status:         e.Status,
		OverallRating:  e.OverallRating,
		CreatedAt:      e.CreatedAt,
	}
}

// PublicationHistoryResponse represents one publish or republish run.
type PublicationHistoryResponse struct {
	ID                 string                   `json:"id"`
	Action             domain.PublicationAction `json:"action"`
	EvaluationsCreated int                      `json:"evaluationsCreated"`
	EvaluationsRemoved int                      `json:"evaluationsRemoved"`
	ActorID            *string                  `json:"actorId"`
	CreatedAt          time.Time                `json:"createdAt"`
}

// NewPublicationHistoryResponse maps a history entry.
func NewPublicationHistoryResponse(p *domain.CyclePublication) PublicationHistoryResponse {
	return PublicationHistoryResponse{
		ID:                 p.ID,
		Action:             p.Action,
		EvaluationsCreated: p.EvaluationsCreated,
		EvaluationsRemoved: p.EvaluationsRemoved,
		ActorID:            p.ActorID,
		CreatedAt:          p.CreatedAt,
	}
}
