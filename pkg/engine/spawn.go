// pkg/engine/spawn.go
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/event"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// SpawnUnit places a new unit with its hitbox's top-left corner at pos and
// returns its ID.
func (g *Game) SpawnUnit(class entity.UnitClass, teamID int, pos physics.Vector2D) (uint64, error) {
	var id uint64
	err := g.mutate(func() error {
		unit, err := g.spawnUnit(class, teamID, pos)
		if err != nil {
			return err
		}
		id = unit.ID()
		return nil
	})
	return id, err
}

// SpawnStructure places a new building and returns its ID.
func (g *Game) SpawnStructure(name string, teamID int, pos physics.Vector2D, width, height float64) (uint64, error) {
	var id uint64
	err := g.mutate(func() error {
		s, err := g.spawnStructure(name, teamID, pos, width, height)
		if err != nil {
			return err
		}
		id = s.ID()
		return nil
	})
	return id, err
}

// AttachSensor gives the unit a sensor box, replacing any it already has.
// Zero sizes fall back to the configured sensor size.
func (g *Game) AttachSensor(unitID uint64, width, height float64) (uint64, error) {
	var id uint64
	err := g.mutate(func() error {
		unit, ok := g.Units[unitID]
		if !ok {
			return fmt.Errorf("unit %d: %w", unitID, ErrEntityNotFound)
		}
		if width <= 0 || height <= 0 {
			width, height = g.Config.Rules.SensorWidth, g.Config.Rules.SensorHeight
		}
		id = g.attachSensor(unit, width, height).ID()
		return nil
	})
	return id, err
}

// SetTarget orders a unit to move its center to target
func (g *Game) SetTarget(unitID uint64, target physics.Vector2D) error {
	return g.mutate(func() error {
		unit, ok := g.Units[unitID]
		if !ok {
			return fmt.Errorf("unit %d: %w", unitID, ErrEntityNotFound)
		}
		unit.SetTarget(target)
		return nil
	})
}

// RemoveEntity removes a unit, structure or sensor. Removing a unit also
// removes its sensor.
func (g *Game) RemoveEntity(id uint64) error {
	return g.mutate(func() error {
		switch {
		case g.Units[id] != nil:
			g.removeUnit(g.Units[id])
		case g.Structures[id] != nil:
			g.removeStructure(g.Structures[id])
		case g.Sensors[id] != nil:
			g.detachSensor(g.Sensors[id])
		default:
			return fmt.Errorf("entity %d: %w", id, ErrEntityNotFound)
		}
		return nil
	})
}

// mutate runs fn under the write lock and publishes what it queued after
// the lock is released.
func (g *Game) mutate(fn func() error) error {
	g.EntityLock.Lock()
	err := fn()
	events := g.pending
	g.pending = nil
	if err == nil {
		g.updateEntityMetrics()
	}
	g.EntityLock.Unlock()

	g.flush(events)
	return err
}

func (g *Game) spawnUnit(class entity.UnitClass, teamID int, pos physics.Vector2D) (*entity.Unit, error) {
	team, ok := g.Teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", teamID, ErrUnknownTeam)
	}

	unit := entity.NewUnit(class, teamID, pos)
	if g.Terrain.IsBlocking(unit.Hitbox()) {
		return nil, fmt.Errorf("%s at (%v, %v) is on blocked terrain: %w", class, pos.X, pos.Y, ErrPlacementBlocked)
	}
	g.Index.Add(unit)
	if hits := g.Index.Collisions(unit, collision.BodyOverlap); len(hits) > 0 {
		g.Index.Remove(unit)
		return nil, fmt.Errorf("%s at (%v, %v) overlaps entity %d: %w", class, pos.X, pos.Y, hits[0].ID(), ErrPlacementBlocked)
	}

	unit.SetRand(rand.New(rand.NewPCG(g.rng.Uint64(), g.rng.Uint64())))
	g.Units[unit.ID()] = unit
	g.movement.Add(unit)
	team.UnitCount++

	g.Logger.Debug(context.Background(), "unit spawned",
		"unit_id", unit.ID(),
		"class", class.String(),
		"team_id", teamID,
	)
	g.queue(event.NewUnitEvent(event.UnitSpawned, g, unit.ID(), teamID, pos))
	return unit, nil
}

func (g *Game) spawnStructure(name string, teamID int, pos physics.Vector2D, width, height float64) (*entity.Structure, error) {
	team, ok := g.Teams[teamID]
	if !ok && teamID != -1 {
		return nil, fmt.Errorf("team %d: %w", teamID, ErrUnknownTeam)
	}

	s := entity.NewStructure(name, teamID, pos, width, height)
	if g.Terrain.IsBlocking(s.Hitbox()) {
		return nil, fmt.Errorf("%q is on blocked terrain: %w", name, ErrPlacementBlocked)
	}
	g.Index.Add(s)
	if hits := g.Index.Collisions(s, collision.HitboxOverlap); len(hits) > 0 {
		g.Index.Remove(s)
		return nil, fmt.Errorf("%q overlaps entity %d: %w", name, hits[0].ID(), ErrPlacementBlocked)
	}

	g.Structures[s.ID()] = s
	if team != nil {
		team.StructureCount++
	}
	g.queue(event.NewUnitEvent(event.StructureBuilt, g, s.ID(), teamID, pos))
	return s, nil
}

func (g *Game) attachSensor(owner *entity.Unit, width, height float64) *entity.Sensor {
	if old, ok := g.sensorsByOwner[owner.ID()]; ok {
		g.detachSensor(old)
	}
	sensor := entity.NewSensor(owner, width, height)
	g.Index.Add(sensor)
	g.Sensors[sensor.ID()] = sensor
	g.sensorsByOwner[owner.ID()] = sensor
	g.sensors.Add(sensor)
	g.queue(event.NewUnitEvent(event.SensorAttached, g, owner.ID(), owner.TeamID, sensor.Position()))
	return sensor
}

func (g *Game) detachSensor(sensor *entity.Sensor) {
	g.Index.Remove(sensor)
	g.world.RemoveEntity(sensor.BasicEntity)
	delete(g.Sensors, sensor.ID())
	if sensor.Owner != nil {
		delete(g.sensorsByOwner, sensor.Owner.ID())
	}
}

func (g *Game) removeUnit(unit *entity.Unit) {
	if sensor, ok := g.sensorsByOwner[unit.ID()]; ok {
		g.detachSensor(sensor)
	}
	g.Index.Remove(unit)
	g.world.RemoveEntity(unit.BasicEntity)
	delete(g.Units, unit.ID())
	if team, ok := g.Teams[unit.TeamID]; ok {
		team.UnitCount--
	}
	g.queue(event.NewUnitEvent(event.UnitDestroyed, g, unit.ID(), unit.TeamID, unit.Position()))
}

func (g *Game) removeStructure(s *entity.Structure) {
	g.Index.Remove(s)
	g.world.RemoveEntity(s.BasicEntity)
	delete(g.Structures, s.ID())
	if team, ok := g.Teams[s.TeamID]; ok {
		team.StructureCount--
	}
	g.queue(event.NewUnitEvent(event.StructureDestroyed, g, s.ID(), s.TeamID, s.Position()))
}

func vec(x, y float64) physics.Vector2D {
	return physics.Vector2D{X: x, Y: y}
}
