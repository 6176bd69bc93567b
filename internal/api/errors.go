// Package api exposes forms, responses, templates and live editing sessions
// over HTTP and WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/service"
	"github.com/nimbl/backend/internal/session"
	"github.com/nimbl/backend/internal/share"
)

// Error codes carried in the JSON body.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeHTTP         = "HTTP_ERROR"
	CodeInvalidType  = "INVALID_TYPE"
	CodeBadPayload   = "INVALID_PAYLOAD"
	CodeSessionEnded = "SESSION_CLOSED"
)

// APIError is the body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func newAPIError(status int, code, message string, cause error) *APIError {
	e := &APIError{Status: status, Code: code, Message: message}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

func NewBadRequestError(message string, cause error) *APIError {
	return newAPIError(http.StatusBadRequest, CodeBadRequest, message, cause)
}

// NewValidationError reports a malformed request parameter or body member.
func NewValidationError(field string) *APIError {
	return newAPIError(http.StatusBadRequest, CodeValidation, "invalid value for "+field, nil)
}

// NewSubmissionError lists every issue of a rejected form submission.
func NewSubmissionError(issues []string) *APIError {
	e := newAPIError(http.StatusBadRequest, CodeValidation, "submission failed validation", nil)
	e.Details = strings.Join(issues, "; ")
	return e
}

func NewNotFoundError(resource, id string) *APIError {
	return newAPIError(http.StatusNotFound, CodeNotFound, resource+" not found: "+id, nil)
}

func NewConflictError(message string) *APIError {
	return newAPIError(http.StatusConflict, CodeConflict, message, nil)
}

func NewInternalError(message string, cause error) *APIError {
	return newAPIError(http.StatusInternalServerError, CodeInternal, message, cause)
}

func NewServiceUnavailableError(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, CodeUnavailable, message, nil)
}

// FromError maps a domain error onto an APIError. Unknown errors become
// INTERNAL_ERROR.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return NewSubmissionError(verr.Issues)
	case errors.Is(err, service.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return newAPIError(http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrNotPublished), errors.Is(err, share.ErrEmptySlug):
		return NewConflictError(err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, session.ErrFormInUse):
		return NewConflictError(err.Error())
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, models.ErrInvalidFrame), errors.Is(err, models.ErrInvalidField):
		return NewBadRequestError(err.Error(), nil)
	case errors.Is(err, session.ErrTooManySessions):
		return NewServiceUnavailableError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewServiceUnavailableError("request timed out")
	}
	return NewInternalError("An unexpected error occurred", err)
}

// NewErrorHandler returns an echo HTTPErrorHandler writing APIErrors.
// Internal error details are only exposed when showDetails is set.
func NewErrorHandler(logger *log.Logger, showDetails bool) echo.HTTPErrorHandler {
	logger = logging.OrDefault(logger).WithPrefix("api")
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *APIError
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			apiErr = newAPIError(httpErr.Code, CodeHTTP, fmt.Sprint(httpErr.Message), nil)
		} else {
			apiErr = FromError(err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
			if !showDetails && apiErr.Code == CodeInternal {
				apiErr = newAPIError(apiErr.Status, apiErr.Code, apiErr.Message, nil)
			}
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}
