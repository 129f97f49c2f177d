// pkg/engine/systems.go
package engine

import (
	"context"
	"slices"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/event"
	"github.com/opd-ai/go-rts/pkg/metrics"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// System priorities; ecs.World runs higher priorities first.
const (
	movementPriority = 30
	sensorPriority   = 20
	indexPriority    = 10
)

// MovementSystem moves units one at a time in ascending ID order. Each unit
// steers, is relocated in the index, and is resolved against terrain and the
// other units before the next unit moves, so later units see earlier ones at
// their settled positions.
type MovementSystem struct {
	game  *Game
	units []*entity.Unit
}

func (s *MovementSystem) Priority() int { return movementPriority }

// Add registers u, keeping the list ordered by ID
func (s *MovementSystem) Add(u *entity.Unit) {
	i, found := slices.BinarySearchFunc(s.units, u.ID(), func(e *entity.Unit, id uint64) int {
		return cmpID(e.ID(), id)
	})
	if found {
		return
	}
	s.units = slices.Insert(s.units, i, u)
}

func (s *MovementSystem) Remove(basic ecs.BasicEntity) {
	s.units = slices.DeleteFunc(s.units, func(u *entity.Unit) bool {
		return u.ID() == basic.ID()
	})
}

func (s *MovementSystem) Update(dt float32) {
	g := s.game
	deltaTime := float64(dt)

	for _, u := range s.units {
		hadTarget := u.HasTarget
		u.BeginTick()
		u.Steer(deltaTime)
		attempted := u.Position()

		g.Index.Update(u)
		collided, err := collision.Resolve(u, g.Terrain, g.Index)
		if err != nil {
			g.Logger.Error(context.Background(), "collision response failed", err, "unit_id", u.ID())
			continue
		}
		if collided {
			s.rolledBack(u, attempted)
		}
		if hadTarget && !u.HasTarget {
			g.queue(event.NewUnitEvent(event.UnitArrived, g, u.ID(), u.TeamID, u.Position()))
		}
	}
	g.Metrics.AddCollisionChecks(len(s.units))
}

// rolledBack records a move Resolve undid. The reason is map when the
// attempted hitbox touched terrain, object otherwise.
func (s *MovementSystem) rolledBack(u *entity.Unit, attempted physics.Vector2D) {
	g := s.game
	mapCollision := g.Terrain.IsBlocking(physics.RectAt(attempted, u.Width, u.Height))
	reason := metrics.ReasonObject
	if mapCollision {
		reason = metrics.ReasonMap
	}
	g.Metrics.RecordRollback(reason)

	ev := event.NewRollbackEvent(g, u.ID(), attempted, u.Position(), mapCollision)
	args := []any{
		"unit_id", u.ID(),
		"reason", reason,
		"attempted_x", attempted.X,
		"attempted_y", attempted.Y,
	}
	if !mapCollision {
		if id, contact, ok := s.deepestContact(u, attempted); ok {
			ev.BlockerID, ev.Penetration = id, contact.Penetration
			args = append(args,
				"blocker_id", id,
				"penetration", contact.Penetration,
				"normal_x", contact.Normal.X,
				"normal_y", contact.Normal.Y,
			)
		}
	}
	g.Logger.Debug(context.Background(), "move rolled back", args...)
	g.queue(ev)
}

// deepestContact finds the solid entity u overlapped most at attempted.
// Ties go to the lower ID.
func (s *MovementSystem) deepestContact(u *entity.Unit, attempted physics.Vector2D) (uint64, physics.CollisionResult, bool) {
	var (
		bestID uint64
		best   physics.CollisionResult
	)
	for _, other := range s.game.Index.ObjectsInArea(physics.RectAt(attempted, u.Width, u.Height)) {
		if other.ID() == u.ID() {
			continue
		}
		contact := collision.ContactAt(u, attempted, other)
		if !contact.Collided {
			continue
		}
		if !best.Collided || contact.Penetration > best.Penetration ||
			(contact.Penetration == best.Penetration && other.ID() < bestID) {
			bestID, best = other.ID(), contact
		}
	}
	return bestID, best, best.Collided
}

// SensorSystem keeps sensors centered on their owners and counts the solid
// units inside each sensor box, owner excluded.
type SensorSystem struct {
	game    *Game
	sensors []*entity.Sensor
}

func (s *SensorSystem) Priority() int { return sensorPriority }

// Add registers sensor, keeping the list ordered by ID
func (s *SensorSystem) Add(sensor *entity.Sensor) {
	i, found := slices.BinarySearchFunc(s.sensors, sensor.ID(), func(e *entity.Sensor, id uint64) int {
		return cmpID(e.ID(), id)
	})
	if found {
		return
	}
	s.sensors = slices.Insert(s.sensors, i, sensor)
}

func (s *SensorSystem) Remove(basic ecs.BasicEntity) {
	s.sensors = slices.DeleteFunc(s.sensors, func(sensor *entity.Sensor) bool {
		return sensor.ID() == basic.ID()
	})
}

func (s *SensorSystem) Update(float32) {
	g := s.game
	total := 0
	for _, sensor := range s.sensors {
		sensor.Follow()
		g.Index.Update(sensor)
		sensor.Detected = len(g.Cache.unitsInArea(sensor.Hitbox(), sensor.Owner))
		total += sensor.Detected
	}
	g.Metrics.SetSensorDetections(total)
}

// IndexSystem publishes index occupancy every tick and runs the full
// consistency check every interval ticks.
type IndexSystem struct {
	game     *Game
	interval int
}

func (s *IndexSystem) Priority() int { return indexPriority }

func (s *IndexSystem) Remove(ecs.BasicEntity) {}

func (s *IndexSystem) Update(float32) {
	g := s.game
	stats := g.Index.Stats()
	g.Metrics.SetIndexStats(stats.Objects, stats.OccupiedLeaves, stats.MaxLeafLoad)

	// CurrentTick is incremented after the systems run
	tick := g.CurrentTick + 1
	if s.interval <= 0 || tick%uint64(s.interval) != 0 {
		return
	}
	err := g.Index.CheckConsistency()
	g.lastIndexErr = err
	if err == nil {
		return
	}
	g.Metrics.RecordConsistencyFailure()
	g.Logger.Error(context.Background(), "spatial index inconsistent", err, "tick", tick)
	g.queue(event.NewIndexEvent(g, tick, err))
}

func cmpID(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
