// Package camera maps between world space and viewport (screen) space.
//
// A Camera names the world point shown at the viewport center and a zoom
// level. Zoom is expressed in the units of the Limits in use: a plain scale
// factor (Unit 1, e.g. 0.2..2.0) or a percentage (Unit 100, e.g. 10..500).
package camera

import "math"

// Camera is ephemeral view state. It is never stored with a form.
type Camera struct {
	X    float64 `json:"x" msgpack:"x"`
	Y    float64 `json:"y" msgpack:"y"`
	Zoom float64 `json:"zoom" msgpack:"zoom"`
}

// Point is a 2D coordinate in either world or screen space.
type Point struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Viewport is the visible canvas size in screen pixels.
type Viewport struct {
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// Center returns the screen-space center of the viewport.
func (v Viewport) Center() Point {
	return Point{X: v.Width / 2, Y: v.Height / 2}
}

// Bounds is a world-space rectangle in pixels, typically a frame's layout.
type Bounds struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	W float64 `json:"w" msgpack:"w"`
	H float64 `json:"h" msgpack:"h"`
}

// Limits parameterizes zoom range and camera bounds.
type Limits struct {
	MinZoom     float64 `yaml:"min_zoom"`
	MaxZoom     float64 `yaml:"max_zoom"`
	DefaultZoom float64 `yaml:"default_zoom"`
	ZoomStep    float64 `yaml:"zoom_step"`
	// Unit is the zoom value that means 1:1 scale.
	Unit float64 `yaml:"unit"`
	// WorldPadding is how far past a frame's edges the camera center may go.
	WorldPadding float64 `yaml:"world_padding"`
	// FitPadding is the screen margin kept around a frame when fitting.
	FitPadding float64 `yaml:"fit_padding"`
}

// DefaultLimits uses a scale factor zoom.
func DefaultLimits() Limits {
	return Limits{
		MinZoom:      0.2,
		MaxZoom:      2.0,
		DefaultZoom:  1.0,
		ZoomStep:     0.1,
		Unit:         1,
		WorldPadding: 400,
		FitPadding:   120,
	}
}

// PercentLimits uses a percentage zoom, 10% to 500% in 10% steps.
func PercentLimits() Limits {
	return Limits{
		MinZoom:      10,
		MaxZoom:      500,
		DefaultZoom:  100,
		ZoomStep:     10,
		Unit:         100,
		WorldPadding: 400,
		FitPadding:   120,
	}
}

// Scale converts a zoom value to the factor applied to world distances.
func (l Limits) Scale(zoom float64) float64 {
	if l.Unit <= 0 {
		return zoom
	}
	return zoom / l.Unit
}

// ClampZoom bounds zoom to [MinZoom, MaxZoom]. NaN maps to DefaultZoom.
func (l Limits) ClampZoom(zoom float64) float64 {
	if math.IsNaN(zoom) {
		zoom = l.DefaultZoom
	}
	return math.Max(l.MinZoom, math.Min(l.MaxZoom, zoom))
}

// ClampCamera keeps the camera center within WorldPadding of the frame and
// clamps its zoom.
func (l Limits) ClampCamera(cam Camera, frame Bounds) Camera {
	p := l.WorldPadding
	return Camera{
		X:    math.Max(frame.X-p, math.Min(frame.X+frame.W+p, cam.X)),
		Y:    math.Max(frame.Y-p, math.Min(frame.Y+frame.H+p, cam.Y)),
		Zoom: l.ClampZoom(cam.Zoom),
	}
}

// FitCameraToRect centers on r and picks the largest zoom that shows all of
// r inside the viewport minus padding on every side.
func (l Limits) FitCameraToRect(r Bounds, vp Viewport, padding float64) Camera {
	scaleX := (vp.Width - 2*padding) / r.W
	scaleY := (vp.Height - 2*padding) / r.H
	scale := math.Min(scaleX, scaleY)

	unit := l.Unit
	if unit <= 0 {
		unit = 1
	}

	return Camera{
		X:    r.X + r.W/2,
		Y:    r.Y + r.H/2,
		Zoom: l.ClampZoom(scale * unit),
	}
}

// Fit is FitCameraToRect with the configured FitPadding.
func (l Limits) Fit(r Bounds, vp Viewport) Camera {
	return l.FitCameraToRect(r, vp, l.FitPadding)
}

// ScreenToWorld maps a viewport-relative point to world space.
func (l Limits) ScreenToWorld(p Point, cam Camera, vp Viewport) Point {
	c := vp.Center()
	s := l.Scale(cam.Zoom)
	return Point{
		X: cam.X + (p.X-c.X)/s,
		Y: cam.Y + (p.Y-c.Y)/s,
	}
}

// WorldToScreen is the inverse of ScreenToWorld.
func (l Limits) WorldToScreen(p Point, cam Camera, vp Viewport) Point {
	c := vp.Center()
	s := l.Scale(cam.Zoom)
	return Point{
		X: c.X + (p.X-cam.X)*s,
		Y: c.Y + (p.Y-cam.Y)*s,
	}
}

// ZoomAt changes zoom to newZoom (clamped) while keeping the world point
// under the screen point anchor fixed. The result is not bounds-clamped.
func (l Limits) ZoomAt(cam Camera, anchor Point, newZoom float64, vp Viewport) Camera {
	before := l.ScreenToWorld(anchor, cam, vp)

	next := cam
	next.Zoom = l.ClampZoom(newZoom)

	after := l.ScreenToWorld(anchor, next, vp)
	next.X += before.X - after.X
	next.Y += before.Y - after.Y
	return next
}

// Pan moves the camera opposite to a screen-space drag delta measured from
// start, so content follows the pointer. The result is not bounds-clamped.
func (l Limits) Pan(start Camera, dx, dy float64) Camera {
	s := l.Scale(start.Zoom)
	return Camera{
		X:    start.X - dx/s,
		Y:    start.Y - dy/s,
		Zoom: start.Zoom,
	}
}
