// pkg/entity/entity.go
package entity

import (
	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// Kind distinguishes the entity types living in the world
type Kind int

const (
	KindUnit Kind = iota
	KindStructure
	KindSensor
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindStructure:
		return "structure"
	case KindSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// Entity is the base interface for all world objects
type Entity interface {
	collision.Collidable
	Kind() Kind
	Render(r Renderer)
}

// BaseEntity contains common functionality for all entities. Position is the
// top-left corner of the entity's bounding box.
type BaseEntity struct {
	ecs.BasicEntity
	Pos    physics.Vector2D
	OldPos physics.Vector2D
	Width  float64
	Height float64
	Active bool
}

// NewBaseEntity allocates a fresh ecs identity at position
func NewBaseEntity(position physics.Vector2D, width, height float64) BaseEntity {
	return BaseEntity{
		BasicEntity: ecs.NewBasic(),
		Pos:         position,
		OldPos:      position,
		Width:       width,
		Height:      height,
		Active:      true,
	}
}

// Position returns the entity's current position
func (e *BaseEntity) Position() physics.Vector2D {
	return e.Pos
}

// OldPosition returns the position at the start of the tick
func (e *BaseEntity) OldPosition() physics.Vector2D {
	return e.OldPos
}

// SetPosition moves the entity without touching its old position
func (e *BaseEntity) SetPosition(p physics.Vector2D) {
	e.Pos = p
}

// Hitbox returns the entity's bounding box
func (e *BaseEntity) Hitbox() physics.Rect {
	return physics.RectAt(e.Pos, e.Width, e.Height)
}

// Center returns the middle of the hitbox
func (e *BaseEntity) Center() physics.Vector2D {
	return e.Hitbox().Center()
}

// BeginTick records the current position as the tick's old position
func (e *BaseEntity) BeginTick() {
	e.OldPos = e.Pos
}

// Moved reports whether the entity changed position this tick
func (e *BaseEntity) Moved() bool {
	return !e.Pos.Equal(e.OldPos)
}
