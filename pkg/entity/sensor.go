// pkg/entity/sensor.go
package entity

import (
	"fmt"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// Sensor is a virtual box centered on its owner. It is indexed so that
// neighbours can be found through it, but it is never a collision target.
type Sensor struct {
	BaseEntity
	Owner    *Unit
	Detected int
}

// NewSensor creates a width x height sensor centered on owner
func NewSensor(owner *Unit, width, height float64) *Sensor {
	s := &Sensor{
		BaseEntity: NewBaseEntity(physics.Vector2D{}, width, height),
		Owner:      owner,
	}
	s.Pos = s.anchor()
	s.OldPos = s.Pos
	return s
}

// Follow moves the sensor to its owner's current center and records where it
// came from, so the index can relocate it with Update.
func (s *Sensor) Follow() {
	s.OldPos = s.Pos
	s.Pos = s.anchor()
}

func (s *Sensor) anchor() physics.Vector2D {
	if s.Owner == nil {
		return s.Pos
	}
	return s.Owner.Center().Sub(physics.Vector2D{X: s.Width / 2, Y: s.Height / 2})
}

func (s *Sensor) Kind() Kind { return KindSensor }

func (s *Sensor) Radius() (float64, error) {
	return 0, fmt.Errorf("sensor %d has no radius: %w", s.ID(), collision.ErrUnsupportedShape)
}

func (s *Sensor) IsVirtual() bool { return true }

func (s *Sensor) CollisionInLastTick() (bool, error) {
	return false, fmt.Errorf("sensor %d: %w", s.ID(), collision.ErrUnsupportedShape)
}

func (s *Sensor) SetCollisionInLastTick(bool) error {
	return fmt.Errorf("sensor %d: %w", s.ID(), collision.ErrUnsupportedShape)
}

func (s *Sensor) Capabilities() collision.Capability { return 0 }

func (s *Sensor) Render(r Renderer) {
	r.RenderSensor(s)
}
