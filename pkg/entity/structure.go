// pkg/entity/structure.go
package entity

import (
	"math"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// Structure is a static building. Units collide with its whole footprint,
// and since it never moves it opts out of map checks.
type Structure struct {
	BaseEntity
	Name     string
	TeamID   int // -1 for neutral
	collided bool
}

// NewStructure creates a building occupying width x height from position
func NewStructure(name string, teamID int, position physics.Vector2D, width, height float64) *Structure {
	return &Structure{
		BaseEntity: NewBaseEntity(position, width, height),
		Name:       name,
		TeamID:     teamID,
	}
}

func (s *Structure) Kind() Kind { return KindStructure }

// Radius is half the shorter side. Collision response uses the footprint
// instead because the structure is Rectangular.
func (s *Structure) Radius() (float64, error) {
	return math.Min(s.Width, s.Height) / 2, nil
}

func (s *Structure) IsVirtual() bool { return false }

func (s *Structure) CollisionInLastTick() (bool, error) {
	return s.collided, nil
}

func (s *Structure) SetCollisionInLastTick(c bool) error {
	s.collided = c
	return nil
}

func (s *Structure) Capabilities() collision.Capability {
	return collision.ObjectCollidable | collision.Rectangular
}

func (s *Structure) Render(r Renderer) {
	r.RenderStructure(s)
}
