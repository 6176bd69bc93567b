// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/interaction"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/session"
)

// FormHandler handles form records, publishing and share links
type FormHandler interface {
	HandleCreateForm(c echo.Context) error
	HandleListForms(c echo.Context) error
	HandleGetForm(c echo.Context) error
	HandleUpdateForm(c echo.Context) error
	HandleDeleteForm(c echo.Context) error
	HandlePublishForm(c echo.Context) error
	HandleUnpublishForm(c echo.Context) error
	HandleGetPublishedForm(c echo.Context) error
	HandleShareLink(c echo.Context) error
	HandleQRCode(c echo.Context) error
}

// FieldHandler handles field edits outside an editing session
type FieldHandler interface {
	HandleAddField(c echo.Context) error
	HandlePatchField(c echo.Context) error
	HandleRemoveField(c echo.Context) error
	HandleRenderForm(c echo.Context) error
}

// ResponseHandler handles submissions and exports
type ResponseHandler interface {
	HandleSubmitResponse(c echo.Context) error
	HandleListResponses(c echo.Context) error
	HandleGetResponse(c echo.Context) error
	HandleDeleteResponse(c echo.Context) error
	HandleExportResponses(c echo.Context) error
}

// TemplateHandler lists form templates
type TemplateHandler interface {
	HandleListTemplates(c echo.Context) error
}

// SessionHandler handles server-held editing sessions
type SessionHandler interface {
	HandleOpenSession(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleCloseSession(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandlePointerDown(c echo.Context) error
	HandlePointerMove(c echo.Context) error
	HandlePointerUp(c echo.Context) error
	HandleWheel(c echo.Context) error
	HandleKey(c echo.Context) error
	HandleSetViewport(c echo.Context) error
	HandleGetView(c echo.Context) error
	HandleGetViewMsgpack(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	Open(ctx context.Context, formID string, vp camera.Viewport) (*models.EditSession, interaction.View, error)
	Get(id string) (*models.EditSession, bool)
	Do(id string, fn func(c *interaction.Controller) error) (interaction.View, error)
	View(id string) (interaction.View, error)
	TouchSession(id string) bool
	Subscribe(id string) (<-chan session.Event, func(), error)
	Close(ctx context.Context, id string) error
	Editing(formID string) (string, bool)
	Count() int
}

var _ SessionManager = (*session.Manager)(nil)
