package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/evaluation-service/internal/api/dto"
	"github.com/spec-kit/evaluation-service/internal/auth"
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/repository"
	"github.com/spec-kit/evaluation-service/internal/service"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

// CyclesHandler manages evaluation cycle endpoints.
type CyclesHandler struct {
	service *service.CycleService
}

// NewCyclesHandler constructs handler.
func NewCyclesHandler(cycleService *service.CycleService) *CyclesHandler {
	return &CyclesHandler{service: cycleService}
}

// CreateCycle POST /cycles.
func (h *CyclesHandler) CreateCycle(c *fiber.Ctx) error {
	var req dto.CreateCycleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	input, err := req.ToInput()
	if err != nil {
		return err
	}
	cycle, err := h.service.CreateCycle(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCycleResponse(cycle)})
}

// ListCycles GET /cycles.
func (h *CyclesHandler) ListCycles(c *fiber.Ctx) error {
	var q dto.CycleListQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := dto.Validate(&q); err != nil {
		return err
	}
	filter := repository.CycleFilter{Limit: q.Limit, Offset: q.Offset}
	if q.Status != "" {
		status := domain.CycleStatus(q.Status)
		filter.Status = &status
	}
	cycles, err := h.service.ListCycles(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.CycleResponse, 0, len(cycles))
	for i := range cycles {
		items = append(items, dto.NewCycleResponse(&cycles[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCycle GET /cycles/:id.
func (h *CyclesHandler) GetCycle(c *fiber.Ctx) error {
	cycle, err := h.service.GetCycle(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCycleResponse(cycle)})
}

// CloseCycle POST /cycles/:id/close.
func (h *CyclesHandler) CloseCycle(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	cycle, err := h.service.CloseCycle(c.UserContext(), principal.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCycleResponse(cycle)})
}

// ListEvaluations GET /cycles/:id/evaluations.
func (h *CyclesHandler) ListEvaluations(c *fiber.Ctx) error {
	var q dto.EvaluationListQuery
	if err := c.QueryParser(&q); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	if err := dto.Validate(&q); err != nil {
		return err
	}
	filter := repository.EvaluationFilter{Limit: q.Limit, Offset: q.Offset}
	if q.EmployeeID != "" {
		filter.EmployeeID = &q.EmployeeID
	}
	if q.EvaluatorID != "" {
		filter.EvaluatorID = &q.EvaluatorID
	}
	if q.EvaluationType != "" {
		t := domain.EvaluationType(q.EvaluationType)
		filter.EvaluationType = &t
	}
	if q.Status != "" {
		s := domain.EvaluationStatus(q.Status)
		filter.Status = &s
	}

	evaluations, err := h.service.ListEvaluations(c.UserContext(), c.Params("id"), filter)
	if err != nil {
		return err
	}
	items := make([]dto.EvaluationResponse, 0, len(evaluations))
	for i := range evaluations {
		items = append(items, dto.NewEvaluationResponse(&evaluations[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListPublications GET /cycles/:id/publications.
func (h *CyclesHandler) ListPublications(c *fiber.Ctx) error {
	history, err := h.service.ListPublications(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.PublicationHistoryResponse, 0, len(history))
	for i := range history {
		items = append(items, dto.NewPublicationHistoryResponse(&history[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
