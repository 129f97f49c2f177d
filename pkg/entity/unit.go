// pkg/entity/unit.go
package entity

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// UnitClass defines the type of unit and its movement profile
type UnitClass int

const (
	Worker UnitClass = iota
	Infantry
	Tank
	Harvester
)

// UnitStats contains the base statistics for a unit class
type UnitStats struct {
	Radius float64
	Speed  float64 // world units per second
}

// arrivalDistance is how close the unit's center must get to count as arrived
const arrivalDistance = 0.5

// Unit is a mobile, circular, solid entity steered toward a target
type Unit struct {
	BaseEntity
	Class     UnitClass
	Stats     UnitStats
	TeamID    int
	Target    physics.Vector2D
	HasTarget bool
	Velocity  physics.Vector2D
	collided  bool
	rng       *rand.Rand
}

// NewUnit creates a unit whose hitbox top-left corner sits at position
func NewUnit(class UnitClass, teamID int, position physics.Vector2D) *Unit {
	stats := getUnitStats(class)
	unit := &Unit{
		BaseEntity: NewBaseEntity(position, stats.Radius*2, stats.Radius*2),
		Class:      class,
		Stats:      stats,
		TeamID:     teamID,
	}
	unit.rng = rand.New(rand.NewPCG(unit.ID(), uint64(teamID)))
	return unit
}

// SetRand replaces the jitter source
func (u *Unit) SetRand(rng *rand.Rand) {
	u.rng = rng
}

func (u *Unit) Kind() Kind { return KindUnit }

func (u *Unit) Radius() (float64, error) {
	return u.Stats.Radius, nil
}

func (u *Unit) IsVirtual() bool { return false }

func (u *Unit) CollisionInLastTick() (bool, error) {
	return u.collided, nil
}

func (u *Unit) SetCollisionInLastTick(c bool) error {
	u.collided = c
	return nil
}

func (u *Unit) Capabilities() collision.Capability {
	return collision.MapCollidable | collision.ObjectCollidable
}

func (u *Unit) Render(r Renderer) {
	r.RenderUnit(u)
}

// SetTarget orders the unit to move its center to target
func (u *Unit) SetTarget(target physics.Vector2D) {
	u.Target = target
	u.HasTarget = true
}

// Stop clears the unit's target
func (u *Unit) Stop() {
	u.HasTarget = false
	u.Velocity = physics.Vector2D{}
}

// Steer advances the unit by one tick. A unit rolled back last tick takes a
// random sidestep instead so two units blocking each other can separate.
func (u *Unit) Steer(deltaTime float64) {
	step := u.Stats.Speed * deltaTime
	if step <= 0 {
		u.Velocity = physics.Vector2D{}
		return
	}

	if u.collided && u.HasTarget {
		u.Velocity = physics.FromAngle(u.rng.Float64()*2*math.Pi, u.Stats.Speed)
		u.Pos = u.Pos.Add(u.Velocity.Scale(deltaTime))
		return
	}

	if !u.HasTarget {
		u.Velocity = physics.Vector2D{}
		return
	}

	toTarget := u.Target.Sub(u.Center())
	dist := toTarget.Length()
	if dist <= arrivalDistance {
		u.Stop()
		return
	}

	move := toTarget.ClampLength(step)
	u.Velocity = move.Scale(1 / deltaTime)
	u.Pos = u.Pos.Add(move)
}

// Arrived reports whether the unit has no outstanding target
func (u *Unit) Arrived() bool {
	return !u.HasTarget
}

func getUnitStats(class UnitClass) UnitStats {
	switch class {
	case Worker:
		return UnitStats{Radius: 8, Speed: 60}
	case Infantry:
		return UnitStats{Radius: 10, Speed: 50}
	case Tank:
		return UnitStats{Radius: 20, Speed: 35}
	case Harvester:
		return UnitStats{Radius: 16, Speed: 40}
	default:
		return UnitStats{Radius: 10, Speed: 50}
	}
}

// ErrUnknownUnitClass is returned by ParseUnitClass for unrecognised names
var ErrUnknownUnitClass = errors.New("unknown unit class")

// ParseUnitClass converts a case-insensitive class name to a UnitClass
func ParseUnitClass(s string) (UnitClass, error) {
	switch strings.ToLower(s) {
	case "worker":
		return Worker, nil
	case "infantry":
		return Infantry, nil
	case "tank":
		return Tank, nil
	case "harvester":
		return Harvester, nil
	default:
		return Infantry, fmt.Errorf("%w: %q", ErrUnknownUnitClass, s)
	}
}

// UnitClassFromString converts a class name to a UnitClass, defaulting to Infantry
func UnitClassFromString(s string) UnitClass {
	class, _ := ParseUnitClass(s)
	return class
}

func (c UnitClass) String() string {
	switch c {
	case Worker:
		return "worker"
	case Infantry:
		return "infantry"
	case Tank:
		return "tank"
	case Harvester:
		return "harvester"
	default:
		return "unknown"
	}
}
