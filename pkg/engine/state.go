// pkg/engine/state.go
package engine

import (
	"maps"
	"slices"

	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// GameState is a point-in-time copy of the world, safe to use without locks
type GameState struct {
	Tick       uint64           `json:"tick"`
	Running    bool             `json:"running"`
	World      physics.Rect     `json:"world"`
	Units      []UnitState      `json:"units"`
	Structures []StructureState `json:"structures"`
	Sensors    []SensorState    `json:"sensors"`
	Teams      []TeamState      `json:"teams"`
}

// UnitState represents a snapshot of a unit
type UnitState struct {
	ID        uint64            `json:"id"`
	Class     string            `json:"class"`
	TeamID    int               `json:"teamID"`
	Position  physics.Vector2D  `json:"position"`
	Radius    float64           `json:"radius"`
	Velocity  physics.Vector2D  `json:"velocity"`
	Target    *physics.Vector2D `json:"target,omitempty"`
	Collided  bool              `json:"collided"`
	SensorID  uint64            `json:"sensorID,omitempty"`
	Detecting int               `json:"detecting"`
}

// StructureState represents a snapshot of a building
type StructureState struct {
	ID     uint64       `json:"id"`
	Name   string       `json:"name"`
	TeamID int          `json:"teamID"`
	Bounds physics.Rect `json:"bounds"`
}

// SensorState represents a snapshot of a sensor box
type SensorState struct {
	ID       uint64       `json:"id"`
	OwnerID  uint64       `json:"ownerID"`
	Bounds   physics.Rect `json:"bounds"`
	Detected int          `json:"detected"`
}

// TeamState represents a snapshot of a team
type TeamState struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	UnitCount      int    `json:"unitCount"`
	StructureCount int    `json:"structureCount"`
}

// MapState describes the static terrain
type MapState struct {
	TileSize float64  `json:"tileSize"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Layout   []string `json:"layout"`
}

// GetState returns a snapshot of the world with every list in ID order
func (g *Game) GetState() *GameState {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()

	return g.createStateSnapshot()
}

// createStateSnapshot builds the snapshot. Callers hold the lock.
func (g *Game) createStateSnapshot() *GameState {
	return &GameState{
		Tick:       g.CurrentTick,
		Running:    g.Running(),
		World:      g.Index.Bounds(),
		Units:      g.getUnitStates(),
		Structures: g.getStructureStates(),
		Sensors:    g.getSensorStates(),
		Teams:      g.getTeamStates(),
	}
}

// UnitsInArea returns snapshots of the units whose hitbox intersects area
func (g *Game) UnitsInArea(area physics.Rect) []UnitState {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()

	units := g.Cache.UnitsInArea(area)
	states := make([]UnitState, 0, len(units))
	for _, u := range units {
		states = append(states, g.unitState(u))
	}
	return states
}

// Unit returns a snapshot of one unit
func (g *Game) Unit(id uint64) (UnitState, bool) {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()

	u, ok := g.Units[id]
	if !ok {
		return UnitState{}, false
	}
	return g.unitState(u), true
}

// MapState returns the blocking map as an ASCII layout
func (g *Game) MapState() MapState {
	return MapState{
		TileSize: g.Terrain.TileSize(),
		Width:    g.Terrain.Width(),
		Height:   g.Terrain.Height(),
		Layout:   g.Terrain.Rows(),
	}
}

// Render draws structures, sensors and then units, each in ID order
func (g *Game) Render(r entity.Renderer) {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()

	r.Clear()
	for _, id := range slices.Sorted(maps.Keys(g.Structures)) {
		g.Structures[id].Render(r)
	}
	for _, id := range slices.Sorted(maps.Keys(g.Sensors)) {
		g.Sensors[id].Render(r)
	}
	for _, id := range slices.Sorted(maps.Keys(g.Units)) {
		g.Units[id].Render(r)
	}
	r.Present()
}

func (g *Game) getUnitStates() []UnitState {
	states := make([]UnitState, 0, len(g.Units))
	for _, u := range g.Units {
		states = append(states, g.unitState(u))
	}
	slices.SortFunc(states, func(a, b UnitState) int { return cmpID(a.ID, b.ID) })
	return states
}

func (g *Game) unitState(u *entity.Unit) UnitState {
	collided, _ := u.CollisionInLastTick()
	state := UnitState{
		ID:       u.ID(),
		Class:    u.Class.String(),
		TeamID:   u.TeamID,
		Position: u.Position(),
		Radius:   u.Stats.Radius,
		Velocity: u.Velocity,
		Collided: collided,
	}
	if u.HasTarget {
		target := u.Target
		state.Target = &target
	}
	if sensor, ok := g.sensorsByOwner[u.ID()]; ok {
		state.SensorID = sensor.ID()
		state.Detecting = sensor.Detected
	}
	return state
}

func (g *Game) getStructureStates() []StructureState {
	states := make([]StructureState, 0, len(g.Structures))
	for id, s := range g.Structures {
		states = append(states, StructureState{
			ID:     id,
			Name:   s.Name,
			TeamID: s.TeamID,
			Bounds: s.Hitbox(),
		})
	}
	slices.SortFunc(states, func(a, b StructureState) int { return cmpID(a.ID, b.ID) })
	return states
}

func (g *Game) getSensorStates() []SensorState {
	states := make([]SensorState, 0, len(g.Sensors))
	for id, s := range g.Sensors {
		state := SensorState{
			ID:       id,
			Bounds:   s.Hitbox(),
			Detected: s.Detected,
		}
		if s.Owner != nil {
			state.OwnerID = s.Owner.ID()
		}
		states = append(states, state)
	}
	slices.SortFunc(states, func(a, b SensorState) int { return cmpID(a.ID, b.ID) })
	return states
}

func (g *Game) getTeamStates() []TeamState {
	states := make([]TeamState, 0, len(g.Teams))
	for id, team := range g.Teams {
		states = append(states, TeamState{
			ID:             id,
			Name:           team.Name,
			Color:          team.Color,
			UnitCount:      team.UnitCount,
			StructureCount: team.StructureCount,
		})
	}
	slices.SortFunc(states, func(a, b TeamState) int { return a.ID - b.ID })
	return states
}
