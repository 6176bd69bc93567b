// handlers_session.go - Editing session handlers
package api

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/interaction"
	"github.com/nimbl/backend/internal/models"
)

// MIMEApplicationMsgpack is the content type of binary views.
const MIMEApplicationMsgpack = "application/msgpack"

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessionMgr SessionManager
}

// NewSessionHandler creates a new session handler instance
func NewSessionHandler(sessionMgr SessionManager) SessionHandler {
	return &SessionHandlerImpl{sessionMgr: sessionMgr}
}

type openSessionRequest struct {
	FormID   string          `json:"formId"`
	Viewport camera.Viewport `json:"viewport"`
}

type sessionResponse struct {
	Session *models.EditSession `json:"session"`
	View    interaction.View    `json:"view"`
}

type pointerRequest struct {
	X      float64            `json:"x"`
	Y      float64            `json:"y"`
	Target interaction.Target `json:"target"`
}

type wheelRequest struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	DeltaY   float64 `json:"deltaY"`
	Modifier bool    `json:"modifier"`
}

type keyResponse struct {
	Handled bool             `json:"handled"`
	View    interaction.View `json:"view"`
}

func validViewport(vp camera.Viewport) bool {
	return vp.Width > 0 && vp.Height > 0
}

func pointerDown(req pointerRequest) func(*interaction.Controller) error {
	return func(c *interaction.Controller) error {
		c.PointerDown(camera.Point{X: req.X, Y: req.Y}, req.Target)
		return nil
	}
}

func pointerMove(req pointerRequest) func(*interaction.Controller) error {
	return func(c *interaction.Controller) error {
		c.PointerMove(camera.Point{X: req.X, Y: req.Y})
		return nil
	}
}

func pointerUp(c *interaction.Controller) error {
	c.PointerUp()
	return nil
}

func wheel(req wheelRequest) func(*interaction.Controller) error {
	return func(c *interaction.Controller) error {
		c.Wheel(camera.Point{X: req.X, Y: req.Y}, req.DeltaY, req.Modifier)
		return nil
	}
}

func setViewport(vp camera.Viewport) func(*interaction.Controller) error {
	return func(c *interaction.Controller) error {
		c.SetViewport(vp)
		return nil
	}
}

// HandleOpenSession starts an editing session on a form
func (h *SessionHandlerImpl) HandleOpenSession(c echo.Context) error {
	var req openSessionRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.FormID == "" {
		return NewValidationError("formId")
	}
	if !validViewport(req.Viewport) {
		return NewValidationError("viewport")
	}

	sess, view, err := h.sessionMgr.Open(c.Request().Context(), req.FormID, req.Viewport)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sessionResponse{Session: sess, View: view})
}

// HandleGetSession returns session metadata and its current view
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	id := c.Param("sessionId")
	sess, ok := h.sessionMgr.Get(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	view, err := h.sessionMgr.View(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{Session: sess, View: view})
}

// HandleCloseSession saves pending edits and ends the session
func (h *SessionHandlerImpl) HandleCloseSession(c echo.Context) error {
	if err := h.sessionMgr.Close(c.Request().Context(), c.Param("sessionId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSessionKeepAlive extends session lifetime for active editing
func (h *SessionHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if !h.sessionMgr.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandlePointerDown starts a pan, drag or resize gesture
func (h *SessionHandlerImpl) HandlePointerDown(c echo.Context) error {
	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Target.Kind == "" {
		req.Target.Kind = interaction.TargetBackground
	}
	return h.run(c, pointerDown(req))
}

// HandlePointerMove advances the active gesture
func (h *SessionHandlerImpl) HandlePointerMove(c echo.Context) error {
	var req pointerRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	return h.run(c, pointerMove(req))
}

// HandlePointerUp ends the active gesture
func (h *SessionHandlerImpl) HandlePointerUp(c echo.Context) error {
	return h.run(c, pointerUp)
}

// HandleWheel zooms around the pointer when the modifier is held
func (h *SessionHandlerImpl) HandleWheel(c echo.Context) error {
	var req wheelRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	return h.run(c, wheel(req))
}

// HandleKey runs a keyboard shortcut
func (h *SessionHandlerImpl) HandleKey(c echo.Context) error {
	var req interaction.Key
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Key == "" {
		return NewValidationError("key")
	}

	var handled bool
	view, err := h.sessionMgr.Do(c.Param("sessionId"), func(ctrl *interaction.Controller) error {
		handled = ctrl.HandleKey(req)
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, keyResponse{Handled: handled, View: view})
}

// HandleSetViewport records a resized canvas
func (h *SessionHandlerImpl) HandleSetViewport(c echo.Context) error {
	var req camera.Viewport
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if !validViewport(req) {
		return NewValidationError("viewport")
	}
	return h.run(c, setViewport(req))
}

// HandleGetView returns the current view as JSON
func (h *SessionHandlerImpl) HandleGetView(c echo.Context) error {
	return h.run(c, nil)
}

// HandleGetViewMsgpack returns the current view in MessagePack format
func (h *SessionHandlerImpl) HandleGetViewMsgpack(c echo.Context) error {
	view, err := h.sessionMgr.View(c.Param("sessionId"))
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(view); err != nil {
		return NewInternalError("failed to encode view", err)
	}
	return c.Blob(http.StatusOK, MIMEApplicationMsgpack, buf.Bytes())
}

func (h *SessionHandlerImpl) run(c echo.Context, fn func(*interaction.Controller) error) error {
	view, err := h.sessionMgr.Do(c.Param("sessionId"), fn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}
