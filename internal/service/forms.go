// Package service implements the form and response operations behind the
// HTTP API and the command line.
package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/responses"
	"github.com/nimbl/backend/internal/storage"
	"github.com/nimbl/backend/internal/templates"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	untitledForm    = "Untitled Form"
)

// FormService manages form records and their definitions.
type FormService struct {
	// serializes read-modify-write cycles on stored records
	mu sync.Mutex

	forms     storage.FormStore
	responses responses.Store
	model     *form.Model
	templates *templates.Registry
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a FormService.
type Option func(*FormService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *FormService) { s.now = now }
}

// WithIDFunc replaces the form id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *FormService) { s.newID = fn }
}

// NewFormService creates a FormService. responses and tpl may be nil.
func NewFormService(forms storage.FormStore, resp responses.Store, model *form.Model, tpl *templates.Registry, logger *log.Logger, opts ...Option) *FormService {
	s := &FormService{
		forms:     forms,
		responses: resp,
		model:     model,
		templates: tpl,
		logger:    logging.OrDefault(logger).WithPrefix("forms"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the frame and field model forms are edited with.
func (s *FormService) Model() *form.Model { return s.model }

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a title: lowercase, runs of other
// characters collapsed to "-", cut to 50 characters, then "-" and the first
// six characters of id.
func Slugify(title, id string) string {
	s := slugSeparators.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.TrimSuffix(strings.TrimPrefix(s, "-"), "-")
	if len(s) > 50 {
		s = s[:50]
	}
	if len(id) > 6 {
		id = id[:6]
	}
	return s + "-" + id
}

// CreateInput describes a new form.
type CreateInput struct {
	OwnerID     string `json:"ownerId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Template names a starter layout; empty starts from a blank frame.
	Template string `json:"template,omitempty"`
}

// Create stores a new unpublished form.
func (s *FormService) Create(ctx context.Context, in CreateInput) (*models.FormRecord, error) {
	id := s.newID()
	title := sanitizeText(in.Title)

	var (
		def models.FormDefinition
		err error
	)
	if in.Template != "" {
		if s.templates == nil {
			return nil, fmt.Errorf("%w: templates are not available", ErrInvalidInput)
		}
		def, err = s.templates.Instantiate(s.model, in.Template, id, title)
		if err == nil && title == "" {
			title = def.Title
		}
	} else {
		if title == "" {
			title = untitledForm
		}
		def, err = s.model.NewDefinition(id, title)
	}
	if err != nil {
		return nil, classify(err)
	}
	def.Title = title

	now := s.now().UTC()
	rec := &models.FormRecord{
		ID:          id,
		OwnerID:     in.OwnerID,
		Title:       title,
		Slug:        Slugify(title, id),
		Description: sanitizeText(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
		Definition:  def,
	}
	if err := s.forms.Create(rec); err != nil {
		return nil, classify(err)
	}

	logging.FromContext(ctx).Debug("form created", "id", id, "template", in.Template)
	return rec, nil
}

// Get returns a form by id.
func (s *FormService) Get(ctx context.Context, id string) (*models.FormRecord, error) {
	rec, err := s.forms.Get(id)
	return rec, classify(err)
}

// List returns summaries of ownerID's forms (all owners when empty).
func (s *FormService) List(ctx context.Context, ownerID string, limit, offset int) (models.Page[models.FormSummary], error) {
	limit, offset = pageBounds(limit, offset)
	recs, total, err := s.forms.List(ownerID, limit, offset)
	if err != nil {
		return models.Page[models.FormSummary]{}, err
	}
	items := make([]models.FormSummary, 0, len(recs))
	for _, r := range recs {
		items = append(items, r.Summary())
	}
	return models.Page[models.FormSummary]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// UpdateInput carries optional form changes. Nil members are kept.
type UpdateInput struct {
	Title       *string                `json:"title,omitempty"`
	Description *string                `json:"description,omitempty"`
	Definition  *models.FormDefinition `json:"definition,omitempty"`
}

// Update applies in to a form. A replacement definition is validated and
// its text sanitized; its id and title follow the record.
func (s *FormService) Update(ctx context.Context, id string, in UpdateInput) (*models.FormRecord, error) {
	return s.mutate(id, func(rec *models.FormRecord) error {
		if in.Definition != nil {
			def := in.Definition.Clone()
			if err := def.Validate(); err != nil {
				return classify(err)
			}
			if err := sanitizeDefinition(&def); err != nil {
				return err
			}
			rec.Definition = def
		}
		if in.Title != nil {
			title := sanitizeText(*in.Title)
			if title == "" {
				return fmt.Errorf("%w: title must not be empty", ErrInvalidInput)
			}
			rec.Title = title
		}
		if in.Description != nil {
			rec.Description = sanitizeText(*in.Description)
		}
		rec.Definition.ID = rec.ID
		rec.Definition.Title = rec.Title
		return nil
	})
}

// SaveDefinition replaces a form's definition as-is after validating it.
// Editing sessions use it for autosave.
func (s *FormService) SaveDefinition(ctx context.Context, id string, def models.FormDefinition) error {
	_, err := s.mutate(id, func(rec *models.FormRecord) error {
		if err := def.Validate(); err != nil {
			return classify(err)
		}
		rec.Definition = def.Clone()
		rec.Definition.ID = rec.ID
		rec.Definition.Title = rec.Title
		return nil
	})
	return err
}

// Delete removes a form and all of its responses.
func (s *FormService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.forms.Get(id); err != nil {
		return classify(err)
	}
	if s.responses != nil {
		n, err := s.responses.DeleteByForm(ctx, id)
		if err != nil {
			return fmt.Errorf("deleting responses of %s: %w", id, err)
		}
		s.logger.Debug("cascaded response delete", "form", id, "count", n)
	}
	return classify(s.forms.Delete(id))
}

// Publish makes a form reachable by slug and open for submissions.
func (s *FormService) Publish(ctx context.Context, id string) (*models.FormRecord, error) {
	return s.mutate(id, func(rec *models.FormRecord) error {
		if !rec.Published {
			t := s.now().UTC()
			rec.PublishedAt = &t
		}
		rec.Published = true
		return nil
	})
}

// Unpublish hides a form from the public again.
func (s *FormService) Unpublish(ctx context.Context, id string) (*models.FormRecord, error) {
	return s.mutate(id, func(rec *models.FormRecord) error {
		rec.Published = false
		return nil
	})
}

// GetPublished returns the published form with the given slug. Unpublished
// forms are reported as not found.
func (s *FormService) GetPublished(ctx context.Context, slug string) (*models.FormRecord, error) {
	rec, err := s.forms.GetBySlug(slug)
	if err != nil {
		return nil, classify(err)
	}
	if !rec.Published {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, ErrNotPublished)
	}
	return rec, nil
}

// AddField places a new field on a form.
func (s *FormService) AddField(ctx context.Context, formID string, nf form.NewField) (*models.FormRecord, models.Field, error) {
	var added models.Field
	rec, err := s.mutate(formID, func(rec *models.FormRecord) error {
		if nf.Props != nil {
			props, err := sanitizeProps(*nf.Props)
			if err != nil {
				return err
			}
			nf.Props = &props
		}
		def, f, err := s.model.AddField(rec.Definition, nf)
		if err != nil {
			return classify(err)
		}
		rec.Definition, added = def, f
		return nil
	})
	return rec, added, err
}

// PatchField merges a patch into a field. The resulting layout is clamped
// to its frame; an overlap with a sibling is a conflict.
func (s *FormService) PatchField(ctx context.Context, formID, fieldID string, p models.FieldPatch) (*models.FormRecord, models.Field, error) {
	var patched models.Field
	rec, err := s.mutate(formID, func(rec *models.FormRecord) error {
		def, err := form.PlaceField(rec.Definition, fieldID, p)
		if err != nil {
			return classify(err)
		}
		f := def.Fields[fieldID]
		if f.Props, err = sanitizeProps(f.Props); err != nil {
			return err
		}
		def.Fields[fieldID] = f
		rec.Definition, patched = def, f
		return nil
	})
	return rec, patched, err
}

// RemoveField deletes a field from a form.
func (s *FormService) RemoveField(ctx context.Context, formID, fieldID string) (*models.FormRecord, error) {
	return s.mutate(formID, func(rec *models.FormRecord) error {
		def, err := form.RemoveField(rec.Definition, fieldID)
		if err != nil {
			return classify(err)
		}
		rec.Definition = def
		return nil
	})
}

// Render resolves a form's frames and fields to pixel rectangles.
func (s *FormService) Render(ctx context.Context, id string) (form.Rendered, error) {
	rec, err := s.forms.Get(id)
	if err != nil {
		return form.Rendered{}, classify(err)
	}
	return form.Render(rec.Definition), nil
}

// mutate loads a record, applies fn and stores the result with a fresh
// UpdatedAt. Nothing is stored when fn fails.
func (s *FormService) mutate(id string, fn func(rec *models.FormRecord) error) (*models.FormRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.forms.Get(id)
	if err != nil {
		return nil, classify(err)
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.forms.Update(rec); err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
