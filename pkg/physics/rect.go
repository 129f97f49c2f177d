// pkg/physics/rect.go
package physics

import "math"

// Rect is an axis-aligned rectangle anchored at its top-left corner.
// A rectangle with a negative width or height is empty.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// NewRect builds a rectangle from its top-left corner and size.
func NewRect(x, y, w, h float64) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// RectAt builds a rectangle of the given size whose top-left corner is pos.
func RectAt(pos Vector2D, w, h float64) Rect {
	return Rect{X: pos.X, Y: pos.Y, W: w, H: h}
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.W }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Min returns the top-left corner.
func (r Rect) Min() Vector2D { return Vector2D{X: r.X, Y: r.Y} }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Vector2D {
	return Vector2D{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Empty reports whether the rectangle has negative extent.
func (r Rect) Empty() bool {
	return r.W < 0 || r.H < 0
}

// Area returns W*H, or 0 for empty rectangles.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Intersects reports whether the two rectangles share at least one point.
// Edges are inclusive so touching rectangles intersect, which keeps the
// index consistent with the inclusive circle overlap test.
func (r Rect) Intersects(other Rect) bool {
	if r.Empty() || other.Empty() {
		return false
	}
	return r.X <= other.Right() && other.X <= r.Right() &&
		r.Y <= other.Bottom() && other.Y <= r.Bottom()
}

// ContainsRect reports whether other lies fully inside r, edges included.
func (r Rect) ContainsRect(other Rect) bool {
	if r.Empty() || other.Empty() {
		return false
	}
	return other.X >= r.X && other.Right() <= r.Right() &&
		other.Y >= r.Y && other.Bottom() <= r.Bottom()
}

// ContainsPoint reports whether p lies inside r, edges included.
func (r Rect) ContainsPoint(p Vector2D) bool {
	if r.Empty() {
		return false
	}
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// Translate returns the rectangle moved by delta.
func (r Rect) Translate(delta Vector2D) Rect {
	return Rect{X: r.X + delta.X, Y: r.Y + delta.Y, W: r.W, H: r.H}
}

// Intersection returns the overlapping region and whether it exists.
func (r Rect) Intersection(other Rect) (Rect, bool) {
	if !r.Intersects(other) {
		return Rect{}, false
	}
	x := math.Max(r.X, other.X)
	y := math.Max(r.Y, other.Y)
	right := math.Min(r.Right(), other.Right())
	bottom := math.Min(r.Bottom(), other.Bottom())
	return Rect{X: x, Y: y, W: right - x, H: bottom - y}, true
}

// Quadrant indexes the four children produced by Split.
type Quadrant int

const (
	NorthWest Quadrant = iota
	NorthEast
	SouthWest
	SouthEast
)

// Split divides the rectangle into four quadrants that tile it exactly.
// The west and north halves take the ceiling of the half extent and the east
// and south halves the remainder, so odd sizes leave no gap.
func (r Rect) Split() [4]Rect {
	westW := math.Ceil(r.W / 2)
	eastW := r.W - westW
	northH := math.Ceil(r.H / 2)
	southH := r.H - northH

	var quads [4]Rect
	quads[NorthWest] = Rect{X: r.X, Y: r.Y, W: westW, H: northH}
	quads[NorthEast] = Rect{X: r.X + westW, Y: r.Y, W: eastW, H: northH}
	quads[SouthWest] = Rect{X: r.X, Y: r.Y + northH, W: westW, H: southH}
	quads[SouthEast] = Rect{X: r.X + westW, Y: r.Y + northH, W: eastW, H: southH}
	return quads
}

// MinHalfExtent returns the smaller of the two floor-halves produced by
// Split. A node whose MinHalfExtent falls below the minimum size is a leaf.
func (r Rect) MinHalfExtent() float64 {
	return math.Min(r.W-math.Ceil(r.W/2), r.H-math.Ceil(r.H/2))
}
