// Package collision defines the contract every indexable game object
// exposes, the pairwise detection predicates, and the rollback policy that
// reconciles detected collisions with object motion.
package collision

import (
	"errors"
	"strings"

	"github.com/opd-ai/go-rts/pkg/physics"
)

// ErrUnsupportedShape is returned when a property is read from an object
// that intentionally does not define it, such as the radius of a purely
// rectangular helper.
var ErrUnsupportedShape = errors.New("unsupported shape operation")

// Capability is the set of collision checks an object takes part in.
type Capability uint8

const (
	// MapCollidable objects are tested against the static blocking map.
	MapCollidable Capability = 1 << iota
	// ObjectCollidable objects are tested against other indexed objects.
	ObjectCollidable
	// Rectangular objects occupy their whole hitbox rather than the circle
	// inscribed at its top-left corner.
	Rectangular
)

// Has reports whether every flag in other is set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, flag := range []struct {
		bit  Capability
		name string
	}{
		{MapCollidable, "map"},
		{ObjectCollidable, "object"},
		{Rectangular, "rect"},
	} {
		if c.Has(flag.bit) {
			names = append(names, flag.name)
			c &^= flag.bit
		}
	}
	if c != 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}

// Collidable is the minimal shape an object needs to be indexed.
//
// Position is the top-left corner of the hitbox. The hitbox is derived from
// the position, so SetPosition must recompute it; the index relies on the
// hitbox being current before a relocation.
type Collidable interface {
	// ID is the stable identity the index keys on. Distinct objects must
	// never share an ID even when they share a hitbox.
	ID() uint64
	Position() physics.Vector2D
	OldPosition() physics.Vector2D
	SetPosition(pos physics.Vector2D)
	Radius() (float64, error)
	Hitbox() physics.Rect
	IsVirtual() bool
	CollisionInLastTick() (bool, error)
	SetCollisionInLastTick(collided bool) error
	Capabilities() Capability
}

// Predicate decides whether two collidables collide.
type Predicate func(a, b Collidable) bool

// ObjectCollisionContainer is the index surface movable objects use once
// per tick.
type ObjectCollisionContainer interface {
	Collisions(obj Collidable, pred Predicate) []Collidable
	Add(obj Collidable)
	Remove(obj Collidable)
	// Update relocates obj unless it has not moved since the last tick.
	Update(obj Collidable)
	// Relocate re-indexes obj unconditionally.
	Relocate(obj Collidable)
}

// MapCollisionContainer answers static terrain queries.
type MapCollisionContainer interface {
	IsBlocking(area physics.Rect) bool
	Width() float64
	Height() float64
}
