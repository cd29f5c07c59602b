package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/evaluation-service/pkg/util/errorutil"
)

func TestPublicationHandler_RequiresPrincipal(t *testing.T) {
	// No auth middleware: every route has to refuse on its own before touching the service.
	h := NewPublicationHandler(nil)
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	app.Get("/cycles/:id/preview", h.Preview)
	app.Post("/cycles/:id/publish", h.Publish)
	app.Post("/cycles/:id/republish", h.Republish)

	for _, route := range []struct{ method, path string }{
		{fiber.MethodGet, "/cycles/c1/preview"},
		{fiber.MethodPost, "/cycles/c1/publish"},
		{fiber.MethodPost, "/cycles/c1/republish"},
	} {
		t.Run(route.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(route.method, route.path, nil))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
