// Package grid converts between grid units and frame-local pixels and
// resolves rectangle placement inside a frame's column grid.
//
// All functions are pure. Callers must guarantee columns >= 1 and
// rowUnit > 0; a zero divisor is a caller bug and is not checked here.
package grid

import "math"

// PlacementScanRows bounds the downward search in FindValidPlacement.
const PlacementScanRows = 100

// epsilon absorbs float error when dividing pixel offsets that were produced
// by multiplying a whole number of columns or rows.
const epsilon = 1e-9

// Rect is an axis-aligned rectangle. Within a frame the unit is grid cells:
// X/Y are column/row of the top-left corner, W/H are spans.
type Rect struct {
	X float64 `json:"x" msgpack:"x" yaml:"x"`
	Y float64 `json:"y" msgpack:"y" yaml:"y"`
	W float64 `json:"w" msgpack:"w" yaml:"w"`
	H float64 `json:"h" msgpack:"h" yaml:"h"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// ColumnWidth returns the pixel width of one column.
func ColumnWidth(frameWidthPx float64, columns int) float64 {
	return frameWidthPx / float64(columns)
}

// ColumnToLocalX converts a column index to a frame-local x offset in pixels.
func ColumnToLocalX(col, frameWidthPx float64, columns int) float64 {
	return col * ColumnWidth(frameWidthPx, columns)
}

// RowToLocalY converts a row index to a frame-local y offset in pixels.
func RowToLocalY(row, rowUnitPx float64) float64 {
	return row * rowUnitPx
}

// LocalXToColumn floors a frame-local x offset to a column index.
// The result is not clamped; see ClampFieldPosition.
func LocalXToColumn(px, frameWidthPx float64, columns int) float64 {
	return math.Floor(px/ColumnWidth(frameWidthPx, columns) + epsilon)
}

// LocalYToRow floors a frame-local y offset to a row index.
func LocalYToRow(px, rowUnitPx float64) float64 {
	return math.Floor(px/rowUnitPx + epsilon)
}

// PreciseColumn converts a frame-local x offset to a fractional column.
// Used when snapping is disabled.
func PreciseColumn(px, frameWidthPx float64, columns int) float64 {
	return px / ColumnWidth(frameWidthPx, columns)
}

// PreciseRow converts a frame-local y offset to a fractional row.
func PreciseRow(px, rowUnitPx float64) float64 {
	return px / rowUnitPx
}

// RectanglesOverlap reports whether a and b share any interior area.
// Rectangles that only touch along an edge do not overlap.
func RectanglesOverlap(a, b Rect) bool {
	return !(a.X+a.W <= b.X ||
		b.X+b.W <= a.X ||
		a.Y+a.H <= b.Y ||
		b.Y+b.H <= a.Y)
}

// OverlapsAny reports whether r overlaps any rectangle in others.
func OverlapsAny(r Rect, others []Rect) bool {
	for _, o := range others {
		if RectanglesOverlap(r, o) {
			return true
		}
	}
	return false
}

// ClampFieldPosition keeps r inside a frame of the given column count.
// X is clamped first, then W is bounded by the space right of the clamped X,
// so the result never extends past the last column. Spans below one cell are
// raised to one before X is bounded. Rows are unbounded downward.
func ClampFieldPosition(r Rect, columns int) Rect {
	cols := float64(columns)

	w := math.Max(1, r.W)
	x := math.Max(0, math.Min(cols-w, r.X))
	w = math.Max(1, math.Min(cols-x, w))
	y := math.Max(0, r.Y)
	h := math.Max(1, r.H)

	return Rect{X: x, Y: y, W: w, H: h}
}

// FindValidPlacement returns the first free slot for a defaultW x defaultH
// rectangle at column 0, scanning rows downward from the top.
//
// The scan stops after PlacementScanRows rows. When every row in range is
// blocked the last tried position is returned even though it overlaps; this
// is best effort, not a guarantee.
func FindValidPlacement(existing []Rect, defaultW, defaultH float64, columns int) Rect {
	candidate := Rect{X: 0, Y: 0, W: defaultW, H: defaultH}
	if !OverlapsAny(candidate, existing) {
		return candidate
	}

	for row := 0; row < PlacementScanRows; row++ {
		candidate.Y = float64(row)
		if !OverlapsAny(candidate, existing) {
			return candidate
		}
	}

	return candidate
}
