package collision

import (
	"fmt"

	"github.com/opd-ai/go-rts/pkg/physics"
)

// CircleOverlap reports whether the inscribed circles of two objects touch.
// The circle of an object sits at Position + (r, r).
//
// Both objects must define a radius. Passing a rectangular helper is a
// programming error and panics with an error wrapping ErrUnsupportedShape;
// callers filter such objects out via IsVirtual first.
func CircleOverlap(a, b Collidable) bool {
	return circleOf(a).Overlaps(circleOf(b))
}

// BodyOverlap is the narrow-phase test collision response uses. Round
// objects are their inscribed circle and Rectangular objects their whole
// hitbox, so a unit cannot stand in the part of a building a circle would
// leave uncovered. Two round objects reduce to CircleOverlap.
func BodyOverlap(a, b Collidable) bool {
	return ContactAt(a, a.Position(), b).Collided
}

// ContactAt measures how a would overlap b if a's top-left corner were at
// pos. The normal points from a towards b. Two rectangular bodies report
// only whether they intersect.
func ContactAt(a Collidable, pos physics.Vector2D, b Collidable) physics.CollisionResult {
	hitbox := a.Hitbox()
	aRect := a.Capabilities().Has(Rectangular)
	bRect := b.Capabilities().Has(Rectangular)

	switch {
	case aRect && bRect:
		return physics.CollisionResult{Collided: physics.RectAt(pos, hitbox.W, hitbox.H).Intersects(b.Hitbox())}
	case bRect:
		return physics.CheckCircleRect(circleAt(a, pos), b.Hitbox())
	case aRect:
		result := physics.CheckCircleRect(circleOf(b), physics.RectAt(pos, hitbox.W, hitbox.H))
		result.Normal = result.Normal.Scale(-1)
		return result
	default:
		return physics.CheckCollision(circleAt(a, pos), circleOf(b))
	}
}

// HitboxOverlap reports whether the axis-aligned hitboxes intersect. It is
// the proximity test used by avoidance sensors.
func HitboxOverlap(a, b Collidable) bool {
	return a.Hitbox().Intersects(b.Hitbox())
}

func circleOf(obj Collidable) physics.Circle {
	return circleAt(obj, obj.Position())
}

func circleAt(obj Collidable, pos physics.Vector2D) physics.Circle {
	r, err := obj.Radius()
	if err != nil {
		panic(fmt.Errorf("circle overlap on object %d: %w", obj.ID(), err))
	}
	return physics.Circle{
		Center: pos.Add(physics.Vector2D{X: r, Y: r}),
		Radius: r,
	}
}
