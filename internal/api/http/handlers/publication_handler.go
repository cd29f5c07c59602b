package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/evaluation-service/internal/auth"
	"github.com/spec-kit/evaluation-service/internal/service"
	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

// PublicationHandler exposes publish, republish and preview.
type PublicationHandler struct {
	service *service.PublicationService
}

// NewPublicationHandler constructs handler.
func NewPublicationHandler(publicationService *service.PublicationService) *PublicationHandler {
	return &PublicationHandler{service: publicationService}
}

// Publish POST /cycles/:id/publish.
func (h *PublicationHandler) Publish(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	result, err := h.service.PublishCycle(c.UserContext(), principal.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Republish POST /cycles/:id/republish.
func (h *PublicationHandler) Republish(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	result, err := h.service.RepublishCycle(c.UserContext(), principal.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Preview GET /cycles/:id/preview.
func (h *PublicationHandler) Preview(c *fiber.Ctx) error {
	if _, ok := auth.PrincipalFromContext(c); !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	preview, err := h.service.PreviewCycle(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if c.QueryBool("summary") {
		preview.Triples = nil
	}
	return c.JSON(fiber.Map{"data": preview})
}
