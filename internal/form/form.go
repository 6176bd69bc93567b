// Package form holds the frame and field model: building definitions,
// placing fields on a frame's grid and merging patches.
//
// Every operation takes a definition and returns a new one; the input is
// never mutated.
package form

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nimbl/backend/internal/grid"
	"github.com/nimbl/backend/internal/models"
)

var (
	ErrFieldNotFound    = errors.New("field not found")
	ErrFrameNotFound    = errors.New("frame not found")
	ErrUnknownFieldType = errors.New("unknown field type")
	ErrOverlap          = errors.New("layout overlaps another field")
)

// Settings are the defaults used when creating frames and fields.
type Settings struct {
	Columns     int
	RowUnit     float64
	FrameWidth  float64
	FrameHeight float64
	FieldW      float64
	FieldH      float64
	TextareaH   float64
}

// DefaultSettings returns a 20 column, 40px row frame of 960x1200.
func DefaultSettings() Settings {
	return Settings{
		Columns:     20,
		RowUnit:     40,
		FrameWidth:  960,
		FrameHeight: 1200,
		FieldW:      6,
		FieldH:      2,
		TextareaH:   4,
	}
}

// Model applies Settings to form definitions.
type Model struct {
	settings Settings
	newID    func() string
}

// Option configures a Model.
type Option func(*Model)

// WithIDFunc replaces the id generator.
func WithIDFunc(fn func() string) Option {
	return func(m *Model) { m.newID = fn }
}

// New creates a Model.
func New(s Settings, opts ...Option) *Model {
	m := &Model{settings: s, newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Settings returns the model's settings.
func (m *Model) Settings() Settings { return m.settings }

// NewDefinition creates an empty definition with a single root frame at the
// world origin.
func (m *Model) NewDefinition(id, title string) (models.FormDefinition, error) {
	root := models.Frame{
		ID:     m.newID(),
		Name:   "Page 1",
		Layout: models.FrameLayout{W: m.settings.FrameWidth, H: m.settings.FrameHeight},
		Grid:   models.GridSpec{Columns: m.settings.Columns, RowUnit: m.settings.RowUnit},
	}
	if err := root.Validate(); err != nil {
		return models.FormDefinition{}, err
	}
	return models.FormDefinition{
		ID:          id,
		Title:       title,
		RootFrameID: root.ID,
		Frames:      map[string]models.Frame{root.ID: root},
		Fields:      map[string]models.Field{},
	}, nil
}

// NewField describes a field to add. Zero W/H use the type's default size;
// nil Props use the type's default properties. An empty FrameID means the
// root frame.
type NewField struct {
	Type    models.FieldType   `json:"type" yaml:"type"`
	FrameID string             `json:"frameId,omitempty" yaml:"frame_id,omitempty"`
	W       float64            `json:"w,omitempty" yaml:"w,omitempty"`
	H       float64            `json:"h,omitempty" yaml:"h,omitempty"`
	Props   *models.FieldProps `json:"props,omitempty" yaml:"props,omitempty"`
}

// AddField places a new field at the first free slot of its frame.
func (m *Model) AddField(def models.FormDefinition, nf NewField) (models.FormDefinition, models.Field, error) {
	if !nf.Type.Valid() {
		return def, models.Field{}, fmt.Errorf("%w: %q", ErrUnknownFieldType, nf.Type)
	}

	frameID := nf.FrameID
	if frameID == "" {
		frameID = def.RootFrameID
	}
	frame, ok := def.Frames[frameID]
	if !ok {
		return def, models.Field{}, fmt.Errorf("%w: %s", ErrFrameNotFound, frameID)
	}

	w, h := m.DefaultSize(nf.Type, frame.Grid.Columns)
	if nf.W > 0 {
		w = nf.W
	}
	if nf.H > 0 {
		h = nf.H
	}
	w = minFloat(w, float64(frame.Grid.Columns))

	props := DefaultProps(nf.Type)
	if nf.Props != nil {
		props = nf.Props.Clone()
	}

	r := grid.FindValidPlacement(SiblingRects(def, frameID, ""), w, h, frame.Grid.Columns)
	field := models.Field{
		ID:     m.newID(),
		Type:   nf.Type,
		Props:  props,
		Layout: models.FieldLayout{FrameID: frameID}.WithRect(r),
	}

	out := def.Clone()
	out.Fields[field.ID] = field
	return out, field, nil
}

// DuplicateField copies a field's type and properties under a fresh id and
// places the copy at the first free slot with the original's size.
func (m *Model) DuplicateField(def models.FormDefinition, fieldID string) (models.FormDefinition, models.Field, error) {
	src, ok := def.Fields[fieldID]
	if !ok {
		return def, models.Field{}, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
	}
	frame, ok := def.Frames[src.Layout.FrameID]
	if !ok {
		return def, models.Field{}, fmt.Errorf("%w: %s", ErrFrameNotFound, src.Layout.FrameID)
	}

	r := grid.FindValidPlacement(SiblingRects(def, frame.ID, ""), src.Layout.W, src.Layout.H, frame.Grid.Columns)
	dup := src.Clone()
	dup.ID = m.newID()
	dup.Layout = dup.Layout.WithRect(r)

	out := def.Clone()
	out.Fields[dup.ID] = dup
	return out, dup, nil
}

// DefaultSize returns the grid span a new field of type t gets.
func (m *Model) DefaultSize(t models.FieldType, columns int) (w, h float64) {
	switch t {
	case models.FieldTypeTextarea:
		return m.settings.FieldW, m.settings.TextareaH
	case models.FieldTypeHeading, models.FieldTypeDivider:
		return float64(columns), 1
	case models.FieldTypeContainer:
		return float64(columns), 4
	default:
		return m.settings.FieldW, m.settings.FieldH
	}
}

// DefaultProps returns the initial property bag for a field type.
func DefaultProps(t models.FieldType) models.FieldProps {
	p := models.FieldProps{Label: DefaultLabel(t)}
	if t.IsChoice() {
		p.Options = []string{"Option 1", "Option 2", "Option 3"}
	}
	return p
}

// DefaultLabel is the type name capitalized followed by "Field".
func DefaultLabel(t models.FieldType) string {
	s := string(t)
	if s == "" {
		return "Field"
	}
	return strings.ToUpper(s[:1]) + s[1:] + " Field"
}

// RemoveField deletes a field. Fields have no children, nothing cascades.
func RemoveField(def models.FormDefinition, fieldID string) (models.FormDefinition, error) {
	if _, ok := def.Fields[fieldID]; !ok {
		return def, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
	}
	out := def.Clone()
	delete(out.Fields, fieldID)
	return out, nil
}

// UpdateField merges a patch into a field without checking placement.
// Callers that need bounds and overlap checks use PlaceField.
func UpdateField(def models.FormDefinition, fieldID string, p models.FieldPatch) (models.FormDefinition, error) {
	f, ok := def.Fields[fieldID]
	if !ok {
		return def, fmt.Errorf("%w: %s", ErrFieldNotFound, fieldID)
	}
	if p.Layout != nil {
		f.Layout = MergeLayout(f.Layout, *p.Layout)
		if _, ok := def.Frames[f.Layout.FrameID]; !ok {
			return def, fmt.Errorf("%w: %s", ErrFrameNotFound, f.Layout.FrameID)
		}
	}
	if p.Props != nil {
		f.Props = MergeProps(f.Props, *p.Props)
	}

	out := def.Clone()
	out.Fields[fieldID] = f
	return out, nil
}

// PlaceField merges a patch, clamps the resulting layout to its frame and
// rejects it with ErrOverlap when it collides with a sibling.
func PlaceField(def models.FormDefinition, fieldID string, p models.FieldPatch) (models.FormDefinition, error) {
	out, err := UpdateField(def, fieldID, p)
	if err != nil {
		return def, err
	}
	f := out.Fields[fieldID]
	frame := out.Frames[f.Layout.FrameID]

	r := grid.ClampFieldPosition(f.Layout.Rect(), frame.Grid.Columns)
	if !CanPlace(out, fieldID, frame.ID, r) {
		return def, ErrOverlap
	}
	f.Layout = f.Layout.WithRect(r)
	out.Fields[fieldID] = f
	return out, nil
}

// SiblingRects returns the grid rectangles of every field in frameID other
// than excludeID.
func SiblingRects(def models.FormDefinition, frameID, excludeID string) []grid.Rect {
	rects := make([]grid.Rect, 0, len(def.Fields))
	for id, f := range def.Fields {
		if id == excludeID || f.Layout.FrameID != frameID {
			continue
		}
		rects = append(rects, f.Layout.Rect())
	}
	return rects
}

// CanPlace reports whether fieldID may occupy r in frameID without
// overlapping a sibling. Fields in other frames are ignored.
func CanPlace(def models.FormDefinition, fieldID, frameID string, r grid.Rect) bool {
	return !grid.OverlapsAny(r, SiblingRects(def, frameID, fieldID))
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
