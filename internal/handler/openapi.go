package handler

import (
	"fmt"
	"net/http"
	"os"

	"github.com/deppfellow/tenantflow/internal/server"
	"github.com/labstack/echo/v4"
)

// OpenAPIHandler serves the API reference UI. The page loads
// static/openapi.json.
type OpenAPIHandler struct {
	Handler
	uiPath string
}

func NewOpenAPIHandler(s *server.Server) *OpenAPIHandler {
	return &OpenAPIHandler{
		Handler: NewHandler(s),
		uiPath:  "static/openapi.html",
	}
}

func (h *OpenAPIHandler) ServeOpenAPIUI(c echo.Context) error {
	templateBytes, err := os.ReadFile(h.uiPath)

	c.Response().Header().Set("Cache-Control", "no-cache")

	if err != nil {
		return fmt.Errorf("failed to read OpenAPI UI template: %w", err)
	}

	if err := c.HTML(http.StatusOK, string(templateBytes)); err != nil {
		return fmt.Errorf("failed to write HTML response: %w", err)
	}

	return nil
}
