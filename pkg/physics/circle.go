// pkg/physics/circle.go
package physics

import "math"

// Circle represents a circular collision shape
type Circle struct {
	Center Vector2D
	Radius float64
}

// Overlaps reports whether the circles touch or overlap.
func (c Circle) Overlaps(other Circle) bool {
	sum := c.Radius + other.Radius
	return c.Center.Sub(other.Center).LengthSquared() <= sum*sum
}

// OverlapsRect reports whether the circle touches or overlaps r.
func (c Circle) OverlapsRect(r Rect) bool {
	return CheckCircleRect(c, r).Collided
}

// CollisionResult contains information about a collision
type CollisionResult struct {
	Collided     bool
	Normal       Vector2D
	Penetration  float64
	ContactPoint Vector2D
}

// CheckCollision computes the contact between two circles. The normal points
// from a to b; coincident centers fall back to the +X axis.
func CheckCollision(a, b Circle) CollisionResult {
	offset := b.Center.Sub(a.Center)
	distance := offset.Length()

	if distance > a.Radius+b.Radius {
		return CollisionResult{Collided: false}
	}

	normal := offset.Normalize()
	if distance == 0 {
		normal = Vector2D{X: 1}
	}

	return CollisionResult{
		Collided:     true,
		Normal:       normal,
		Penetration:  a.Radius + b.Radius - distance,
		ContactPoint: a.Center.Add(normal.Scale(a.Radius)),
	}
}

// CheckCircleRect computes the contact between a circle and a rectangle.
// The normal points from the circle towards the rectangle. When the center
// lies inside r the normal points at the nearest edge and the penetration
// includes the depth of the center.
func CheckCircleRect(c Circle, r Rect) CollisionResult {
	closest := Vector2D{
		X: math.Max(r.X, math.Min(c.Center.X, r.Right())),
		Y: math.Max(r.Y, math.Min(c.Center.Y, r.Bottom())),
	}
	offset := closest.Sub(c.Center)
	distance := offset.Length()

	if distance > c.Radius {
		return CollisionResult{Collided: false}
	}
	if distance > 0 {
		return CollisionResult{
			Collided:     true,
			Normal:       offset.Normalize(),
			Penetration:  c.Radius - distance,
			ContactPoint: closest,
		}
	}

	// Center inside the rectangle: push out through the nearest edge.
	edges := [4]struct {
		depth  float64
		normal Vector2D
	}{
		{c.Center.X - r.X, Vector2D{X: 1}},
		{r.Right() - c.Center.X, Vector2D{X: -1}},
		{c.Center.Y - r.Y, Vector2D{Y: 1}},
		{r.Bottom() - c.Center.Y, Vector2D{Y: -1}},
	}
	best := edges[0]
	for _, e := range edges[1:] {
		if e.depth < best.depth {
			best = e
		}
	}
	return CollisionResult{
		Collided:     true,
		Normal:       best.normal,
		Penetration:  c.Radius + best.depth,
		ContactPoint: c.Center,
	}
}
