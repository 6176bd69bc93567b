package service

import (
	"errors"
	"strings"

	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/responses"
	"github.com/nimbl/backend/internal/storage"
	"github.com/nimbl/backend/internal/templates"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNotPublished = errors.New("form is not published")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError lists every problem found in a submission.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// classify maps lower-layer errors onto the service sentinels while
// keeping the original message in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, responses.ErrNotFound),
		errors.Is(err, templates.ErrNotFound),
		errors.Is(err, form.ErrFieldNotFound),
		errors.Is(err, form.ErrFrameNotFound):
		return &kindError{ErrNotFound, err}
	case errors.Is(err, storage.ErrConflict), errors.Is(err, form.ErrOverlap):
		return &kindError{ErrConflict, err}
	case errors.Is(err, form.ErrUnknownFieldType), errors.Is(err, models.ErrInvalidFrame),
		errors.Is(err, models.ErrInvalidField):
		return &kindError{ErrInvalidInput, err}
	}
	return err
}

// kindError tags err with a service sentinel without changing its message.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() []error { return []error{e.kind, e.err} }
