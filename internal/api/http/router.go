package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/evaluation-service/internal/api/http/handlers"
	"github.com/spec-kit/evaluation-service/internal/auth"
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Cycles         *handlers.CyclesHandler
	Publications   *handlers.PublicationHandler
	Hierarchy      *handlers.HierarchyHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Handler())
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	readers := auth.RequireRole(domain.RoleAdmin, domain.RoleHRManager)
	admins := auth.RequireRole(domain.RoleAdmin)

	api.Get("/org/hierarchy", readers, cfg.Hierarchy.Get)

	cycles := api.Group("/cycles")
	cycles.Post("/", admins, cfg.Cycles.CreateCycle)
	cycles.Get("/", readers, cfg.Cycles.ListCycles)
	cycles.Get("/:id", readers, cfg.Cycles.GetCycle)
	cycles.Post("/:id/close", admins, cfg.Cycles.CloseCycle)
	cycles.Get("/:id/evaluations", readers, cfg.Cycles.ListEvaluations)
	cycles.Get("/:id/publications", readers, cfg.Cycles.ListPublications)

	cycles.Get("/:id/preview", admins, cfg.Publications.Preview)
	cycles.Post("/:id/publish", admins, cfg.Publications.Publish)
	cycles.Post("/:id/republish", admins, cfg.Publications.Republish)
}
