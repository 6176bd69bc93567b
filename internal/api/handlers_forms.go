// handlers_forms.go - Form record, field and share link handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/service"
	"github.com/nimbl/backend/internal/share"
)

// maxQRSize bounds the ?size= of QR code requests.
const maxQRSize = 1024

// FormHandlerImpl implements FormHandler and FieldHandler
type FormHandlerImpl struct {
	forms    *service.FormService
	linker   *share.Linker
	sessions SessionManager
}

// NewFormHandler creates a new form handler instance. Definition changes are
// refused while sessions holds an editing session on the form.
func NewFormHandler(forms *service.FormService, linker *share.Linker, sessions SessionManager) *FormHandlerImpl {
	return &FormHandlerImpl{forms: forms, linker: linker, sessions: sessions}
}

// ensureNotEditing fails with CONFLICT while an editing session holds the
// form: its autosave replaces the stored definition wholesale.
func (h *FormHandlerImpl) ensureNotEditing(formID string) error {
	if h.sessions == nil {
		return nil
	}
	if id, ok := h.sessions.Editing(formID); ok {
		return NewConflictError("form is open in editing session " + id + "; edit through the session or close it")
	}
	return nil
}

// HandleCreateForm creates a form, optionally from a template
func (h *FormHandlerImpl) HandleCreateForm(c echo.Context) error {
	var req service.CreateInput
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	rec, err := h.forms.Create(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// HandleListForms lists an owner's forms, newest first
func (h *FormHandlerImpl) HandleListForms(c echo.Context) error {
	limit, offset, err := pageParams(c)
	if err != nil {
		return err
	}

	page, err := h.forms.List(c.Request().Context(), c.QueryParam("ownerId"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleGetForm returns a form with its definition
func (h *FormHandlerImpl) HandleGetForm(c echo.Context) error {
	rec, err := h.forms.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleUpdateForm changes title, description or the whole definition
func (h *FormHandlerImpl) HandleUpdateForm(c echo.Context) error {
	var req service.UpdateInput
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Definition != nil {
		if err := h.ensureNotEditing(c.Param("id")); err != nil {
			return err
		}
	}
	rec, err := h.forms.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleDeleteForm deletes a form and its responses
func (h *FormHandlerImpl) HandleDeleteForm(c echo.Context) error {
	if err := h.forms.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandlePublishForm makes a form reachable through its slug
func (h *FormHandlerImpl) HandlePublishForm(c echo.Context) error {
	rec, err := h.forms.Publish(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleUnpublishForm hides a form from its slug
func (h *FormHandlerImpl) HandleUnpublishForm(c echo.Context) error {
	rec, err := h.forms.Unpublish(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleGetPublishedForm returns a published form by slug
func (h *FormHandlerImpl) HandleGetPublishedForm(c echo.Context) error {
	rec, err := h.forms.GetPublished(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

// HandleShareLink returns the public URL of a published form
func (h *FormHandlerImpl) HandleShareLink(c echo.Context) error {
	link, err := h.publicLink(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"url": link})
}

// HandleQRCode renders the public URL of a published form as a PNG
func (h *FormHandlerImpl) HandleQRCode(c echo.Context) error {
	size := 0
	if raw := c.QueryParam("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxQRSize {
			return NewValidationError("size")
		}
		size = n
	}

	link, err := h.publicLink(c)
	if err != nil {
		return err
	}
	png, err := h.linker.QRCode(link, size)
	if err != nil {
		return NewInternalError("failed to render QR code", err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func (h *FormHandlerImpl) publicLink(c echo.Context) (string, error) {
	rec, err := h.forms.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return "", err
	}
	if !rec.Published {
		return "", NewConflictError("form is not published")
	}
	return h.linker.URL(rec.Slug)
}

// HandleAddField places a new field at the first free slot of its frame
func (h *FormHandlerImpl) HandleAddField(c echo.Context) error {
	if err := h.ensureNotEditing(c.Param("id")); err != nil {
		return err
	}
	var req form.NewField
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Type == "" {
		return NewValidationError("type")
	}

	_, field, err := h.forms.AddField(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, field)
}

// HandlePatchField merges layout and props changes into a field
func (h *FormHandlerImpl) HandlePatchField(c echo.Context) error {
	if err := h.ensureNotEditing(c.Param("id")); err != nil {
		return err
	}
	var req models.FieldPatch
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	_, field, err := h.forms.PatchField(c.Request().Context(), c.Param("id"), c.Param("fieldId"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, field)
}

// HandleRemoveField deletes a field
func (h *FormHandlerImpl) HandleRemoveField(c echo.Context) error {
	if err := h.ensureNotEditing(c.Param("id")); err != nil {
		return err
	}
	if _, err := h.forms.RemoveField(c.Request().Context(), c.Param("id"), c.Param("fieldId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenderForm returns resolved frame and field pixel rectangles
func (h *FormHandlerImpl) HandleRenderForm(c echo.Context) error {
	out, err := h.forms.Render(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// pageParams reads ?limit= and ?offset=. Missing values are zero.
func pageParams(c echo.Context) (limit, offset int, err error) {
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return 0, 0, NewValidationError("limit")
		}
	}
	if raw := c.QueryParam("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, NewValidationError("offset")
		}
	}
	return limit, offset, nil
}
