package form

import (
	"sort"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/grid"
	"github.com/nimbl/backend/internal/models"
)

// FrameLocalToWorld offsets a frame-local point by the frame's origin.
func FrameLocalToWorld(local camera.Point, f models.Frame) camera.Point {
	return camera.Point{X: f.Layout.X + local.X, Y: f.Layout.Y + local.Y}
}

// WorldToFrameLocal is the inverse of FrameLocalToWorld.
func WorldToFrameLocal(world camera.Point, f models.Frame) camera.Point {
	return camera.Point{X: world.X - f.Layout.X, Y: world.Y - f.Layout.Y}
}

// FrameBounds returns the frame's world rectangle for camera math.
func FrameBounds(f models.Frame) camera.Bounds {
	return camera.Bounds{X: f.Layout.X, Y: f.Layout.Y, W: f.Layout.W, H: f.Layout.H}
}

// PixelRect is a rectangle in frame-local pixels.
type PixelRect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// FieldPixelRect resolves a field's grid layout to frame-local pixels.
func FieldPixelRect(l models.FieldLayout, f models.Frame) PixelRect {
	cols := f.Grid.Columns
	return PixelRect{
		X: grid.ColumnToLocalX(l.X, f.Layout.W, cols),
		Y: grid.RowToLocalY(l.Y, f.Grid.RowUnit),
		W: grid.ColumnToLocalX(l.W, f.Layout.W, cols),
		H: grid.RowToLocalY(l.H, f.Grid.RowUnit),
	}
}

// RenderedFrame is a frame with its resolved grid metrics.
type RenderedFrame struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	Layout      models.FrameLayout `json:"layout"`
	Grid        models.GridSpec    `json:"grid"`
	ColumnWidth float64            `json:"columnWidth"`
}

// RenderedField is a field with its resolved frame-local pixel rectangle.
type RenderedField struct {
	ID      string            `json:"id"`
	FrameID string            `json:"frameId"`
	Type    models.FieldType  `json:"type"`
	Props   models.FieldProps `json:"props"`
	Grid    grid.Rect         `json:"grid"`
	Pixels  PixelRect         `json:"pixels"`
}

// Rendered is everything a renderer needs to draw a definition.
type Rendered struct {
	RootFrameID string          `json:"rootFrameId"`
	Frames      []RenderedFrame `json:"frames"`
	Fields      []RenderedField `json:"fields"`
}

// Render resolves pixel layouts for all frames and fields. Fields are
// ordered top to bottom, then left to right.
func Render(def models.FormDefinition) Rendered {
	out := Rendered{
		RootFrameID: def.RootFrameID,
		Frames:      make([]RenderedFrame, 0, len(def.Frames)),
		Fields:      make([]RenderedField, 0, len(def.Fields)),
	}

	for _, f := range def.Frames {
		out.Frames = append(out.Frames, RenderedFrame{
			ID:          f.ID,
			Name:        f.Name,
			Layout:      f.Layout,
			Grid:        f.Grid,
			ColumnWidth: grid.ColumnWidth(f.Layout.W, f.Grid.Columns),
		})
	}
	sort.Slice(out.Frames, func(i, j int) bool {
		if out.Frames[i].ID == def.RootFrameID {
			return true
		}
		if out.Frames[j].ID == def.RootFrameID {
			return false
		}
		return out.Frames[i].ID < out.Frames[j].ID
	})

	for _, fld := range SortedFields(def) {
		frame, ok := def.Frames[fld.Layout.FrameID]
		if !ok {
			continue
		}
		out.Fields = append(out.Fields, RenderedField{
			ID:      fld.ID,
			FrameID: fld.Layout.FrameID,
			Type:    fld.Type,
			Props:   fld.Props,
			Grid:    fld.Layout.Rect(),
			Pixels:  FieldPixelRect(fld.Layout, frame),
		})
	}
	return out
}

// SortedFields returns the definition's fields in reading order.
func SortedFields(def models.FormDefinition) []models.Field {
	fields := make([]models.Field, 0, len(def.Fields))
	for _, f := range def.Fields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		a, b := fields[i].Layout, fields[j].Layout
		if a.FrameID != b.FrameID {
			return a.FrameID < b.FrameID
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return fields[i].ID < fields[j].ID
	})
	return fields
}
