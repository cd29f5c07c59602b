package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/evaluation-service/internal/api/dto"
	"github.com/spec-kit/evaluation-service/internal/service"
)

// HierarchyHandler serves the org hierarchy snapshot.
type HierarchyHandler struct {
	service *service.HierarchyService
}

// NewHierarchyHandler constructs handler.
func NewHierarchyHandler(hierarchyService *service.HierarchyService) *HierarchyHandler {
	return &HierarchyHandler{service: hierarchyService}
}

// Get GET /org/hierarchy.
func (h *HierarchyHandler) Get(c *fiber.Ctx) error {
	src, snap, err := h.service.GetHierarchy(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHierarchyResponse(src, snap)})
}
