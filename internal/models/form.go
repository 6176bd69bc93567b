package models

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nimbl/backend/internal/grid"
)

var (
	// ErrInvalidFrame is returned when a frame violates its grid or size invariants.
	ErrInvalidFrame = errors.New("invalid frame")
	// ErrInvalidField is returned when a field has an unknown type, sits
	// outside its frame's grid or overlaps a sibling.
	ErrInvalidField = errors.New("invalid field")
)

// gridEpsilon absorbs float error on the right-edge bound of fields placed
// with precise (unsnapped) coordinates.
const gridEpsilon = 1e-9

// FieldType is the closed set of field kinds.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeEmail     FieldType = "email"
	FieldTypePhone     FieldType = "phone"
	FieldTypeTextarea  FieldType = "textarea"
	FieldTypeNumber    FieldType = "number"
	FieldTypeSelect    FieldType = "select"
	FieldTypeCheckbox  FieldType = "checkbox"
	FieldTypeRadio     FieldType = "radio"
	FieldTypeDate      FieldType = "date"
	FieldTypeFile      FieldType = "file"
	FieldTypeHeading   FieldType = "heading"
	FieldTypeDivider   FieldType = "divider"
	FieldTypeContainer FieldType = "container"
)

// FieldTypes lists every known type in palette order.
var FieldTypes = []FieldType{
	FieldTypeText, FieldTypeEmail, FieldTypePhone, FieldTypeTextarea,
	FieldTypeNumber, FieldTypeSelect, FieldTypeCheckbox, FieldTypeRadio,
	FieldTypeDate, FieldTypeFile, FieldTypeHeading, FieldTypeDivider,
	FieldTypeContainer,
}

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsChoice reports whether the type carries an option list.
func (t FieldType) IsChoice() bool {
	return t == FieldTypeSelect || t == FieldTypeRadio || t == FieldTypeCheckbox
}

// IsStructural reports whether the type is decoration only and collects no value.
func (t FieldType) IsStructural() bool {
	return t == FieldTypeHeading || t == FieldTypeDivider || t == FieldTypeContainer
}

// FrameLayout is a frame's world-space rectangle in pixels.
type FrameLayout struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// GridSpec divides a frame into equal columns and fixed-height rows.
type GridSpec struct {
	Columns int     `json:"columns" yaml:"columns"`
	RowUnit float64 `json:"rowUnit" yaml:"row_unit"`
}

// Frame is a world-positioned container that owns a local grid.
type Frame struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	ParentID string      `json:"parentId,omitempty"`
	Layout   FrameLayout `json:"layout"`
	Grid     GridSpec    `json:"grid"`
}

// Validate checks the frame's invariants.
func (f Frame) Validate() error {
	if f.Grid.Columns < 1 {
		return fmt.Errorf("%w %s: columns must be >= 1, got %d", ErrInvalidFrame, f.ID, f.Grid.Columns)
	}
	if f.Grid.RowUnit <= 0 {
		return fmt.Errorf("%w %s: row unit must be > 0, got %v", ErrInvalidFrame, f.ID, f.Grid.RowUnit)
	}
	if f.Layout.W <= 0 || f.Layout.H <= 0 {
		return fmt.Errorf("%w %s: size must be positive, got %vx%v", ErrInvalidFrame, f.ID, f.Layout.W, f.Layout.H)
	}
	return nil
}

// FieldProps is the property bag of a field.
type FieldProps struct {
	Label        string   `json:"label,omitempty" yaml:"label,omitempty"`
	Placeholder  string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Required     bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Options      []string `json:"options,omitempty" yaml:"options,omitempty"`
	HelpText     string   `json:"helpText,omitempty" yaml:"help_text,omitempty"`
	DefaultValue any      `json:"defaultValue,omitempty" yaml:"default_value,omitempty"`
	MinLength    *int     `json:"minLength,omitempty" yaml:"min_length,omitempty"`
	MaxLength    *int     `json:"maxLength,omitempty" yaml:"max_length,omitempty"`
	Min          *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max          *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern      string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Clone returns a deep copy.
func (p FieldProps) Clone() FieldProps {
	out := p
	if p.Options != nil {
		out.Options = append([]string(nil), p.Options...)
	}
	if p.MinLength != nil {
		v := *p.MinLength
		out.MinLength = &v
	}
	if p.MaxLength != nil {
		v := *p.MaxLength
		out.MaxLength = &v
	}
	if p.Min != nil {
		v := *p.Min
		out.Min = &v
	}
	if p.Max != nil {
		v := *p.Max
		out.Max = &v
	}
	return out
}

// FieldLayout positions a field in grid units inside its frame.
type FieldLayout struct {
	FrameID string  `json:"frameId"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	W       float64 `json:"w"`
	H       float64 `json:"h"`
}

// Rect returns the layout as a grid rectangle.
func (l FieldLayout) Rect() grid.Rect {
	return grid.Rect{X: l.X, Y: l.Y, W: l.W, H: l.H}
}

// WithRect returns l with its position and size replaced by r.
func (l FieldLayout) WithRect(r grid.Rect) FieldLayout {
	l.X, l.Y, l.W, l.H = r.X, r.Y, r.W, r.H
	return l
}

// Field is a leaf form element owned by exactly one frame.
type Field struct {
	ID     string      `json:"id"`
	Type   FieldType   `json:"type"`
	Props  FieldProps  `json:"props"`
	Layout FieldLayout `json:"layout"`
}

// Clone returns a deep copy.
func (f Field) Clone() Field {
	f.Props = f.Props.Clone()
	return f
}

// FormDefinition is the aggregate root of a form's layout.
type FormDefinition struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	RootFrameID string           `json:"rootFrameId"`
	Frames      map[string]Frame `json:"frames"`
	Fields      map[string]Field `json:"fields"`
}

// RootFrame returns the designated root frame.
func (d FormDefinition) RootFrame() (Frame, bool) {
	f, ok := d.Frames[d.RootFrameID]
	return f, ok
}

// Clone returns a deep copy.
func (d FormDefinition) Clone() FormDefinition {
	out := d
	out.Frames = make(map[string]Frame, len(d.Frames))
	for id, f := range d.Frames {
		out.Frames[id] = f
	}
	out.Fields = make(map[string]Field, len(d.Fields))
	for id, f := range d.Fields {
		out.Fields[id] = f.Clone()
	}
	return out
}

// Validate checks every frame, that the root frame exists, and that every
// field has a known type, lies inside its frame's columns and overlaps no
// field of the same frame. Map keys must match the ids they hold.
func (d FormDefinition) Validate() error {
	if _, ok := d.Frames[d.RootFrameID]; !ok {
		return fmt.Errorf("%w: root frame %q not found", ErrInvalidFrame, d.RootFrameID)
	}
	for key, f := range d.Frames {
		if key != f.ID {
			return fmt.Errorf("%w: frame key %q holds id %q", ErrInvalidFrame, key, f.ID)
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(d.Fields))
	for key := range d.Fields {
		ids = append(ids, key)
	}
	sort.Strings(ids)

	byFrame := make(map[string][]Field)
	for _, key := range ids {
		fld := d.Fields[key]
		if key != fld.ID {
			return fmt.Errorf("%w: field key %q holds id %q", ErrInvalidField, key, fld.ID)
		}
		frame, ok := d.Frames[fld.Layout.FrameID]
		if !ok {
			return fmt.Errorf("%w: field %s references unknown frame %q", ErrInvalidFrame, fld.ID, fld.Layout.FrameID)
		}
		if err := fld.validateIn(frame); err != nil {
			return err
		}
		for _, other := range byFrame[frame.ID] {
			if grid.RectanglesOverlap(fld.Layout.Rect(), other.Layout.Rect()) {
				return fmt.Errorf("%w: field %s overlaps %s", ErrInvalidField, fld.ID, other.ID)
			}
		}
		byFrame[frame.ID] = append(byFrame[frame.ID], fld)
	}
	return nil
}

// validateIn checks the field's type and its layout against frame's grid.
// Negated comparisons also reject NaN.
func (f Field) validateIn(frame Frame) error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w %s: unknown type %q", ErrInvalidField, f.ID, f.Type)
	}
	l := f.Layout
	switch {
	case !(l.X >= 0) || !(l.Y >= 0):
		return fmt.Errorf("%w %s: position must be >= 0, got (%v, %v)", ErrInvalidField, f.ID, l.X, l.Y)
	case !(l.W >= 1) || !(l.H >= 1):
		return fmt.Errorf("%w %s: span must be >= 1, got %vx%v", ErrInvalidField, f.ID, l.W, l.H)
	case !(l.X+l.W <= float64(frame.Grid.Columns)+gridEpsilon):
		return fmt.Errorf("%w %s: x+w = %v exceeds %d columns", ErrInvalidField, f.ID, l.X+l.W, frame.Grid.Columns)
	}
	return nil
}

// FieldLayoutPatch carries optional layout changes. Nil members are kept.
type FieldLayoutPatch struct {
	FrameID *string  `json:"frameId,omitempty"`
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
	W       *float64 `json:"w,omitempty"`
	H       *float64 `json:"h,omitempty"`
}

// FieldPropsPatch carries optional property changes. Nil members are kept.
type FieldPropsPatch struct {
	Label        *string   `json:"label,omitempty"`
	Placeholder  *string   `json:"placeholder,omitempty"`
	Required     *bool     `json:"required,omitempty"`
	Options      *[]string `json:"options,omitempty"`
	HelpText     *string   `json:"helpText,omitempty"`
	DefaultValue any       `json:"defaultValue,omitempty"`
	MinLength    *int      `json:"minLength,omitempty"`
	MaxLength    *int      `json:"maxLength,omitempty"`
	Min          *float64  `json:"min,omitempty"`
	Max          *float64  `json:"max,omitempty"`
	Pattern      *string   `json:"pattern,omitempty"`
}

// FieldPatch groups layout and property changes for one field.
type FieldPatch struct {
	Layout *FieldLayoutPatch `json:"layout,omitempty"`
	Props  *FieldPropsPatch  `json:"props,omitempty"`
}
