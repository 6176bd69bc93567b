// handlers_responses.go - Submission, listing and export handlers
package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/service"
)

// ResponseHandlerImpl implements the ResponseHandler interface
type ResponseHandlerImpl struct {
	responses *service.ResponseService
}

// NewResponseHandler creates a new response handler instance
func NewResponseHandler(responses *service.ResponseService) *ResponseHandlerImpl {
	return &ResponseHandlerImpl{responses: responses}
}

type submitRequest struct {
	Values map[string]any `json:"values"`
}

// HandleSubmitResponse validates and stores a submission to a published form
func (h *ResponseHandlerImpl) HandleSubmitResponse(c echo.Context) error {
	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	meta := models.ResponseMeta{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Referer:   c.Request().Referer(),
	}
	r, err := h.responses.Submit(c.Request().Context(), c.Param("id"), req.Values, meta)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

// HandleListResponses returns a page of a form's responses, newest first
func (h *ResponseHandlerImpl) HandleListResponses(c echo.Context) error {
	limit, offset, err := pageParams(c)
	if err != nil {
		return err
	}

	page, err := h.responses.List(c.Request().Context(), c.Param("id"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// HandleGetResponse returns one response
func (h *ResponseHandlerImpl) HandleGetResponse(c echo.Context) error {
	r, err := h.responses.Get(c.Request().Context(), c.Param("responseId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

// HandleDeleteResponse removes one response
func (h *ResponseHandlerImpl) HandleDeleteResponse(c echo.Context) error {
	if err := h.responses.Delete(c.Request().Context(), c.Param("responseId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleExportResponses downloads every response as CSV (default) or JSON
func (h *ResponseHandlerImpl) HandleExportResponses(c echo.Context) error {
	format := c.QueryParam("format")
	if format == "" {
		format = service.FormatCSV
	}

	var buf bytes.Buffer
	formID := c.Param("id")
	if err := h.responses.Export(c.Request().Context(), formID, format, &buf); err != nil {
		return err
	}

	contentType := "text/csv; charset=utf-8"
	if format == service.FormatJSON {
		contentType = echo.MIMEApplicationJSONCharsetUTF8
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="responses-%s.%s"`, formID, format))
	return c.Blob(http.StatusOK, contentType, buf.Bytes())
}
