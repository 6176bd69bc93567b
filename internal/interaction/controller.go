// Package interaction turns pointer, wheel and keyboard input into camera
// moves and validated field layout changes.
//
// A Controller is not safe for concurrent use. Callers serialize events.
package interaction

import (
	"fmt"
	"math"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/grid"
	"github.com/nimbl/backend/internal/models"
)

// Mode is the active gesture.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModePanning  Mode = "panning"
	ModeDragging Mode = "dragging"
	ModeResizing Mode = "resizing"
)

// TargetKind is what a pointer-down landed on.
type TargetKind string

const (
	TargetBackground TargetKind = "background"
	TargetField      TargetKind = "field"
	TargetHandle     TargetKind = "handle"
	TargetResize     TargetKind = "resize"
)

// Direction names one of the eight resize handles.
type Direction string

const (
	DirN  Direction = "n"
	DirS  Direction = "s"
	DirE  Direction = "e"
	DirW  Direction = "w"
	DirNE Direction = "ne"
	DirNW Direction = "nw"
	DirSE Direction = "se"
	DirSW Direction = "sw"
)

// Valid reports whether d is one of the eight handles.
func (d Direction) Valid() bool {
	switch d {
	case DirN, DirS, DirE, DirW, DirNE, DirNW, DirSE, DirSW:
		return true
	}
	return false
}

func (d Direction) has(edge byte) bool {
	for i := 0; i < len(d); i++ {
		if d[i] == edge {
			return true
		}
	}
	return false
}

// Target identifies the hit target of a pointer-down.
type Target struct {
	Kind      TargetKind `json:"kind"`
	FieldID   string     `json:"fieldId,omitempty"`
	Direction Direction  `json:"direction,omitempty"`
}

// ChangeKind flags what a committed update touched.
type ChangeKind uint8

const (
	ChangeLayout ChangeKind = 1 << iota
	ChangeCamera
	ChangeSelection
	ChangeSettings
)

// Change is reported to the observer after every committed update.
type Change struct {
	Kind    ChangeKind
	FieldID string
}

// Options tune a Controller.
type Options struct {
	Limits camera.Limits
	// Snap floors drag positions to whole cells and rounds resize deltas.
	Snap bool
	// MinSpan is the smallest span a resize may produce.
	MinSpan float64
	// HistoryLimit bounds the undo stack.
	HistoryLimit int
	ShowGrid     bool
}

// DefaultOptions returns snapping on, a minimum resize span of 2 and 50
// undo steps.
func DefaultOptions() Options {
	return Options{
		Limits:       camera.DefaultLimits(),
		Snap:         true,
		MinSpan:      2,
		HistoryLimit: 50,
		ShowGrid:     true,
	}
}

type gesture struct {
	mode        Mode
	startScreen camera.Point
	startCamera camera.Camera
	fieldID     string
	frameID     string
	grabOffset  camera.Point
	direction   Direction
	startLayout models.FieldLayout
	recorded    bool
}

// Controller is the editing state machine for one form definition.
type Controller struct {
	model *form.Model
	opts  Options

	def      models.FormDefinition
	cam      camera.Camera
	vp       camera.Viewport
	selected string
	snap     bool
	showGrid bool

	g gesture

	undo []models.FormDefinition
	redo []models.FormDefinition

	onChange func(Change)
}

// New creates a Controller for def with the camera fitted to the root frame.
// An invalid definition is rejected.
func New(m *form.Model, def models.FormDefinition, vp camera.Viewport, opts Options) (*Controller, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("interaction: %w", err)
	}
	if opts.MinSpan <= 0 {
		opts.MinSpan = 1
	}
	c := &Controller{
		model:    m,
		opts:     opts,
		def:      def.Clone(),
		vp:       vp,
		snap:     opts.Snap,
		showGrid: opts.ShowGrid,
		g:        gesture{mode: ModeIdle},
	}
	c.cam = c.fitCamera()
	return c, nil
}

// OnChange installs the observer called after every committed update.
func (c *Controller) OnChange(fn func(Change)) { c.onChange = fn }

func (c *Controller) emit(kind ChangeKind, fieldID string) {
	if c.onChange != nil {
		c.onChange(Change{Kind: kind, FieldID: fieldID})
	}
}

// Definition returns a copy of the current definition.
func (c *Controller) Definition() models.FormDefinition { return c.def.Clone() }

// Camera returns the current camera.
func (c *Controller) Camera() camera.Camera { return c.cam }

// Viewport returns the current viewport size.
func (c *Controller) Viewport() camera.Viewport { return c.vp }

// Mode returns the active gesture.
func (c *Controller) Mode() Mode { return c.g.mode }

// Selected returns the selected field id, or "".
func (c *Controller) Selected() string { return c.selected }

// Snapping reports whether snapping is on.
func (c *Controller) Snapping() bool { return c.snap }

// ShowGrid reports whether the grid overlay is on.
func (c *Controller) ShowGrid() bool { return c.showGrid }

// SetSnapping toggles snapping.
func (c *Controller) SetSnapping(on bool) {
	if c.snap == on {
		return
	}
	c.snap = on
	c.emit(ChangeSettings, "")
}

// SetViewport records a new viewport size and re-clamps the camera.
func (c *Controller) SetViewport(vp camera.Viewport) {
	c.vp = vp
	c.cam = c.clampCamera(c.cam)
	c.emit(ChangeCamera, "")
}

// SetCamera replaces the camera, clamped to the root frame.
func (c *Controller) SetCamera(cam camera.Camera) {
	c.cam = c.clampCamera(cam)
	c.emit(ChangeCamera, "")
}

func (c *Controller) rootBounds() (camera.Bounds, bool) {
	root, ok := c.def.RootFrame()
	if !ok {
		return camera.Bounds{}, false
	}
	return form.FrameBounds(root), true
}

func (c *Controller) clampCamera(cam camera.Camera) camera.Camera {
	b, ok := c.rootBounds()
	if !ok {
		cam.Zoom = c.opts.Limits.ClampZoom(cam.Zoom)
		return cam
	}
	return c.opts.Limits.ClampCamera(cam, b)
}

func (c *Controller) fitCamera() camera.Camera {
	b, ok := c.rootBounds()
	if !ok {
		return camera.Camera{Zoom: c.opts.Limits.DefaultZoom}
	}
	return c.opts.Limits.Fit(b, c.vp)
}

// PointerDown starts the gesture matching the hit target. Any gesture in
// progress is discarded.
func (c *Controller) PointerDown(p camera.Point, t Target) {
	c.g = gesture{mode: ModeIdle}

	switch t.Kind {
	case TargetBackground:
		c.Select("")
		c.g = gesture{mode: ModePanning, startScreen: p, startCamera: c.cam}

	case TargetField:
		if _, ok := c.def.Fields[t.FieldID]; ok {
			c.Select(t.FieldID)
		}

	case TargetHandle:
		field, frame, ok := c.lookup(t.FieldID)
		if !ok {
			return
		}
		c.Select(field.ID)
		local := c.toFrameLocal(p, frame)
		origin := form.FieldPixelRect(field.Layout, frame)
		c.g = gesture{
			mode:       ModeDragging,
			fieldID:    field.ID,
			frameID:    frame.ID,
			grabOffset: camera.Point{X: local.X - origin.X, Y: local.Y - origin.Y},
		}

	case TargetResize:
		field, frame, ok := c.lookup(t.FieldID)
		if !ok || !t.Direction.Valid() {
			return
		}
		c.Select(field.ID)
		c.g = gesture{
			mode:        ModeResizing,
			fieldID:     field.ID,
			frameID:     frame.ID,
			direction:   t.Direction,
			startScreen: p,
			startLayout: field.Layout,
		}
	}
}

// PointerMove advances the active gesture. It reports whether anything was
// committed; invalid candidates are dropped silently.
func (c *Controller) PointerMove(p camera.Point) bool {
	switch c.g.mode {
	case ModePanning:
		return c.pan(p)
	case ModeDragging:
		return c.drag(p)
	case ModeResizing:
		return c.resize(p)
	}
	return false
}

// PointerUp ends any gesture. The last committed state stands.
func (c *Controller) PointerUp() {
	c.g = gesture{mode: ModeIdle}
}

func (c *Controller) pan(p camera.Point) bool {
	start := c.g.startCamera
	start.Zoom = c.cam.Zoom
	next := c.clampCamera(c.opts.Limits.Pan(start, p.X-c.g.startScreen.X, p.Y-c.g.startScreen.Y))
	if next == c.cam {
		return false
	}
	c.cam = next
	c.emit(ChangeCamera, "")
	return true
}

func (c *Controller) drag(p camera.Point) bool {
	field, frame, ok := c.gestureField()
	if !ok {
		return false
	}

	local := c.toFrameLocal(p, frame)
	lx := local.X - c.g.grabOffset.X
	ly := local.Y - c.g.grabOffset.Y

	var col, row float64
	if c.snap {
		col = grid.LocalXToColumn(lx, frame.Layout.W, frame.Grid.Columns)
		row = grid.LocalYToRow(ly, frame.Grid.RowUnit)
	} else {
		col = grid.PreciseColumn(lx, frame.Layout.W, frame.Grid.Columns)
		row = grid.PreciseRow(ly, frame.Grid.RowUnit)
	}

	candidate := grid.Rect{X: col, Y: row, W: field.Layout.W, H: field.Layout.H}
	return c.commitRect(field, frame, candidate)
}

func (c *Controller) resize(p camera.Point) bool {
	field, frame, ok := c.gestureField()
	if !ok {
		return false
	}

	scale := c.opts.Limits.Scale(c.cam.Zoom)
	colW := grid.ColumnWidth(frame.Layout.W, frame.Grid.Columns)
	dx := (p.X - c.g.startScreen.X) / scale / colW
	dy := (p.Y - c.g.startScreen.Y) / scale / frame.Grid.RowUnit
	if c.snap {
		dx = math.Round(dx)
		dy = math.Round(dy)
	}

	start := c.g.startLayout.Rect()
	r := start
	minSpan := c.opts.MinSpan
	d := c.g.direction

	if d.has('e') {
		r.W = math.Max(minSpan, start.W+dx)
	}
	if d.has('w') {
		w := math.Max(minSpan, start.W-dx)
		r.X = start.X + (start.W - w)
		r.W = w
	}
	if d.has('s') {
		r.H = math.Max(minSpan, start.H+dy)
	}
	if d.has('n') {
		h := math.Max(minSpan, start.H-dy)
		r.Y = start.Y + (start.H - h)
		r.H = h
	}

	return c.commitRect(field, frame, r)
}

// commitRect clamps the candidate and applies it when no sibling overlaps.
func (c *Controller) commitRect(field models.Field, frame models.Frame, candidate grid.Rect) bool {
	r := grid.ClampFieldPosition(candidate, frame.Grid.Columns)
	if r == field.Layout.Rect() {
		return false
	}
	if !form.CanPlace(c.def, field.ID, frame.ID, r) {
		return false
	}

	if !c.g.recorded {
		c.record()
		c.g.recorded = true
	}
	field.Layout = field.Layout.WithRect(r)
	c.def.Fields[field.ID] = field
	c.emit(ChangeLayout, field.ID)
	return true
}

func (c *Controller) gestureField() (models.Field, models.Frame, bool) {
	field, frame, ok := c.lookup(c.g.fieldID)
	if !ok || frame.ID != c.g.frameID {
		c.g = gesture{mode: ModeIdle}
		return models.Field{}, models.Frame{}, false
	}
	return field, frame, true
}

func (c *Controller) lookup(fieldID string) (models.Field, models.Frame, bool) {
	field, ok := c.def.Fields[fieldID]
	if !ok {
		return models.Field{}, models.Frame{}, false
	}
	frame, ok := c.def.Frames[field.Layout.FrameID]
	if !ok {
		return models.Field{}, models.Frame{}, false
	}
	return field, frame, true
}

func (c *Controller) toFrameLocal(p camera.Point, frame models.Frame) camera.Point {
	world := c.opts.Limits.ScreenToWorld(p, c.cam, c.vp)
	return form.WorldToFrameLocal(world, frame)
}

// Wheel zooms one step around the pointer when the zoom modifier is held.
// A plain wheel does nothing.
func (c *Controller) Wheel(p camera.Point, deltaY float64, modifier bool) bool {
	if !modifier || deltaY == 0 {
		return false
	}
	step := c.opts.Limits.ZoomStep
	if deltaY > 0 {
		step = -step
	}
	return c.zoomAt(p, c.cam.Zoom+step)
}

// ZoomBy zooms by steps around the viewport center.
func (c *Controller) ZoomBy(steps int) bool {
	return c.zoomAt(c.vp.Center(), c.cam.Zoom+float64(steps)*c.opts.Limits.ZoomStep)
}

func (c *Controller) zoomAt(anchor camera.Point, zoom float64) bool {
	zoom = c.opts.Limits.ClampZoom(zoom)
	if zoom == c.cam.Zoom {
		return false
	}
	c.cam = c.clampCamera(c.opts.Limits.ZoomAt(c.cam, anchor, zoom, c.vp))
	c.emit(ChangeCamera, "")
	return true
}

// ResetView fits the camera to the root frame.
func (c *Controller) ResetView() {
	c.cam = c.fitCamera()
	c.emit(ChangeCamera, "")
}
