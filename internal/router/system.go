package router

import (
	"github.com/deppfellow/tenantflow/internal/handler"
	"github.com/labstack/echo/v4"
)

// registerSystemRoutes registers the health, docs and static asset routes.
func registerSystemRoutes(r *echo.Echo, h *handler.Handlers) {
	r.GET("/status", h.Health.CheckHealth)

	// openapi.json and openapi.html
	r.Static("/static", "static")

	r.GET("/docs", h.OpenAPI.ServeOpenAPIUI)
}
