// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/service"
	"github.com/nimbl/backend/internal/share"
	"github.com/nimbl/backend/internal/templates"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Forms        *service.FormService
	Responses    *service.ResponseService
	Templates    *templates.Registry
	SessionMgr   SessionManager
	Linker       *share.Linker
	Version      string
	MaxWSMessage int // KB
	Logger       *log.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Forms     FormHandler
	Fields    FieldHandler
	Responses ResponseHandler
	Templates TemplateHandler
	Sessions  SessionHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	forms := NewFormHandler(deps.Forms, deps.Linker, deps.SessionMgr)
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.SessionMgr),
		Forms:     forms,
		Fields:    forms,
		Responses: NewResponseHandler(deps.Responses),
		Templates: NewTemplateHandler(deps.Templates),
		Sessions:  NewSessionHandler(deps.SessionMgr),
		WebSocket: NewWebSocketHandler(deps.SessionMgr, deps.MaxWSMessage, deps.Logger),
	}
}

// RegisterRoutes registers all API routes under /api
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Form records
	formGroup := apiGroup.Group("/forms")
	formGroup.POST("", handlers.Forms.HandleCreateForm)
	formGroup.GET("", handlers.Forms.HandleListForms)
	formGroup.GET("/published/:slug", handlers.Forms.HandleGetPublishedForm)
	formGroup.GET("/:id", handlers.Forms.HandleGetForm)
	formGroup.PUT("/:id", handlers.Forms.HandleUpdateForm)
	formGroup.DELETE("/:id", handlers.Forms.HandleDeleteForm)
	formGroup.POST("/:id/publish", handlers.Forms.HandlePublishForm)
	formGroup.POST("/:id/unpublish", handlers.Forms.HandleUnpublishForm)
	formGroup.GET("/:id/share", handlers.Forms.HandleShareLink)
	formGroup.GET("/:id/qr", handlers.Forms.HandleQRCode)

	// Fields
	formGroup.POST("/:id/fields", handlers.Fields.HandleAddField)
	formGroup.PATCH("/:id/fields/:fieldId", handlers.Fields.HandlePatchField)
	formGroup.DELETE("/:id/fields/:fieldId", handlers.Fields.HandleRemoveField)
	formGroup.GET("/:id/render", handlers.Fields.HandleRenderForm)

	// Responses
	formGroup.POST("/:id/responses", handlers.Responses.HandleSubmitResponse)
	formGroup.GET("/:id/responses", handlers.Responses.HandleListResponses)
	formGroup.GET("/:id/export", handlers.Responses.HandleExportResponses)
	apiGroup.GET("/responses/:responseId", handlers.Responses.HandleGetResponse)
	apiGroup.DELETE("/responses/:responseId", handlers.Responses.HandleDeleteResponse)

	// Templates
	apiGroup.GET("/templates", handlers.Templates.HandleListTemplates)

	// Editing sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Sessions.HandleOpenSession)
	sessionGroup.GET("/:sessionId", handlers.Sessions.HandleGetSession)
	sessionGroup.DELETE("/:sessionId", handlers.Sessions.HandleCloseSession)
	sessionGroup.POST("/:sessionId/keepalive", handlers.Sessions.HandleSessionKeepAlive)
	sessionGroup.POST("/:sessionId/pointer/down", handlers.Sessions.HandlePointerDown)
	sessionGroup.POST("/:sessionId/pointer/move", handlers.Sessions.HandlePointerMove)
	sessionGroup.POST("/:sessionId/pointer/up", handlers.Sessions.HandlePointerUp)
	sessionGroup.POST("/:sessionId/wheel", handlers.Sessions.HandleWheel)
	sessionGroup.POST("/:sessionId/key", handlers.Sessions.HandleKey)
	sessionGroup.PUT("/:sessionId/viewport", handlers.Sessions.HandleSetViewport)
	sessionGroup.GET("/:sessionId/view", handlers.Sessions.HandleGetView)
	sessionGroup.GET("/:sessionId/view/msgpack", handlers.Sessions.HandleGetViewMsgpack)
	sessionGroup.GET("/:sessionId/ws", handlers.WebSocket.HandleWebSocket)
}

// SetupErrorHandling installs the APIError handler
func SetupErrorHandling(e *echo.Echo, logger *log.Logger, showDetails bool) {
	e.HTTPErrorHandler = NewErrorHandler(logger, showDetails)
}
