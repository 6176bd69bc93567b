// handlers_health.go - Health check and template catalogue handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/templates"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	sessions SessionManager
}

// NewHealthHandler creates a new health handler. sessions may be nil.
func NewHealthHandler(version string, sessions SessionManager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		sessions: sessions,
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	body := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
	}
	if h.sessions != nil {
		body["sessions"] = h.sessions.Count()
	}
	return c.JSON(http.StatusOK, body)
}

// TemplateHandlerImpl implements the TemplateHandler interface
type TemplateHandlerImpl struct {
	registry *templates.Registry
}

// NewTemplateHandler creates a new template handler
func NewTemplateHandler(registry *templates.Registry) TemplateHandler {
	return &TemplateHandlerImpl{registry: registry}
}

// HandleListTemplates returns every template, sorted by name
func (h *TemplateHandlerImpl) HandleListTemplates(c echo.Context) error {
	if h.registry == nil {
		return c.JSON(http.StatusOK, []templates.Summary{})
	}
	return c.JSON(http.StatusOK, h.registry.List())
}
