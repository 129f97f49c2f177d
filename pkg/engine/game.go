// pkg/engine/game.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EngoEngine/ecs"

	"github.com/opd-ai/go-rts/pkg/config"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/event"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/metrics"
	"github.com/opd-ai/go-rts/pkg/resource"
	"github.com/opd-ai/go-rts/pkg/spatial"
	"github.com/opd-ai/go-rts/pkg/tilemap"
)

var (
	// ErrEntityNotFound is returned when an ID does not name a live entity.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrPlacementBlocked is returned when a spawn would overlap terrain or a solid object.
	ErrPlacementBlocked = errors.New("placement blocked")
	// ErrUnknownTeam is returned for team IDs the configuration does not define.
	ErrUnknownTeam = errors.New("unknown team")
)

// Game owns the world: entities, the spatial index, the blocking map and the
// ecs systems that advance them. EntityLock guards everything below it; the
// index itself is single-threaded and only touched under the write lock or,
// for read-only queries, the read lock.
type Game struct {
	Config      *config.SimulationConfig
	Units       map[uint64]*entity.Unit
	Structures  map[uint64]*entity.Structure
	Sensors     map[uint64]*entity.Sensor
	Teams       map[int]*Team
	EntityLock  sync.RWMutex
	TimeStep    float64 // Seconds per tick
	CurrentTick uint64
	EventBus    *event.Bus
	Index       *spatial.QuadTree
	Terrain     *tilemap.Grid
	Cache       *SpatialCache
	Metrics     *metrics.Metrics
	Logger      *logging.Logger

	// Resource management
	ResourceManager *resource.ResourceManager

	running        atomic.Bool
	world          *ecs.World
	movement       *MovementSystem
	sensors        *SensorSystem
	indexCheck     *IndexSystem
	sensorsByOwner map[uint64]*entity.Sensor
	pending        []event.Event
	lastIndexErr   error
	rng            *rand.Rand
}

// Team represents a side in the simulation
type Team struct {
	ID             int
	Name           string
	Color          string
	UnitCount      int
	StructureCount int
}

// Option customises a Game at construction
type Option func(*Game)

// WithLogger sets the logger; the default discards everything
func WithLogger(l *logging.Logger) Option {
	return func(g *Game) { g.Logger = l }
}

// WithMetrics sets the metrics sink; nil disables metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Game) { g.Metrics = m }
}

// NewGame builds a world from cfg: the index over the world rectangle, the
// blocking map from the layout, and the configured teams, structures and units.
func NewGame(cfg *config.SimulationConfig, opts ...Option) (*Game, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	game := &Game{
		Config:         cfg,
		Units:          make(map[uint64]*entity.Unit),
		Structures:     make(map[uint64]*entity.Structure),
		Sensors:        make(map[uint64]*entity.Sensor),
		Teams:          make(map[int]*Team),
		TimeStep:       1.0 / float64(cfg.Rules.TickRate),
		EventBus:       event.NewEventBus(),
		Logger:         logging.NewNopLogger(),
		sensorsByOwner: make(map[uint64]*entity.Sensor),
		rng:            rand.New(rand.NewPCG(cfg.Rules.Seed, cfg.Rules.Seed^0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(game)
	}

	if err := game.initTerrain(); err != nil {
		return nil, err
	}
	if err := game.initSpatialIndex(); err != nil {
		return nil, err
	}
	game.initSystems()
	game.initTeams()
	if err := game.initStructures(); err != nil {
		return nil, err
	}
	if err := game.initUnits(); err != nil {
		return nil, err
	}
	game.pending = nil // spawn events before anyone could subscribe are dropped
	game.updateEntityMetrics()

	return game, nil
}

// InitializeResourceManager starts goroutine and memory supervision. A nil
// env uses conservative defaults.
func (g *Game) InitializeResourceManager(env *config.EnvironmentConfig) error {
	if env == nil {
		env = &config.EnvironmentConfig{
			MaxMemoryMB:           500,
			MaxGoroutines:         1000,
			ShutdownTimeout:       30 * time.Second,
			ResourceCheckInterval: 10 * time.Second,
		}
	}
	g.ResourceManager = resource.NewResourceManager(env, g.Logger)
	return g.ResourceManager.Start()
}

// initTerrain builds the blocking map. A layout must cover exactly the world.
func (g *Game) initTerrain() error {
	w := g.Config.World
	if len(w.Layout) == 0 {
		g.Terrain = tilemap.NewGrid(w.Width, w.Height, w.TileSize)
		return nil
	}
	grid, err := tilemap.ParseLayout(w.Layout, w.TileSize)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	if grid.Width() != w.Width || grid.Height() != w.Height {
		return fmt.Errorf("%w: layout covers %vx%v but the world is %vx%v",
			config.ErrInvalidConfig, grid.Width(), grid.Height(), w.Width, w.Height)
	}
	g.Terrain = grid
	return nil
}

// initSpatialIndex creates the quadtree over the world rectangle.
func (g *Game) initSpatialIndex() error {
	index, err := spatial.NewQuadTree(g.Config.World.Width, g.Config.World.Height, g.Config.Index.MinSize)
	if err != nil {
		return logging.WrapError(err, "create spatial index")
	}
	g.Index = index
	g.Cache = NewSpatialCache(g)
	return nil
}

// initSystems registers the tick pipeline with the ecs world.
func (g *Game) initSystems() {
	g.movement = &MovementSystem{game: g}
	g.sensors = &SensorSystem{game: g}
	g.indexCheck = &IndexSystem{game: g, interval: g.Config.Index.ConsistencyCheckInterval}

	g.world = &ecs.World{}
	g.world.AddSystem(g.movement)
	g.world.AddSystem(g.sensors)
	g.world.AddSystem(g.indexCheck)
}

// initTeams initializes the teams based on the configuration.
func (g *Game) initTeams() {
	for i, teamConfig := range g.Config.Teams {
		g.Teams[i] = &Team{
			ID:    i,
			Name:  teamConfig.Name,
			Color: teamConfig.Color,
		}
	}
}

func (g *Game) initStructures() error {
	for i, s := range g.Config.Structures {
		if _, err := g.spawnStructure(s.Name, s.TeamID, vec(s.X, s.Y), s.Width, s.Height); err != nil {
			return fmt.Errorf("structure %d (%s): %w", i, s.Name, err)
		}
	}
	return nil
}

func (g *Game) initUnits() error {
	for i, spawn := range g.Config.Units {
		unit, err := g.spawnUnit(entity.UnitClassFromString(spawn.Class), spawn.TeamID, vec(spawn.X, spawn.Y))
		if err != nil {
			return fmt.Errorf("unit %d (%s): %w", i, spawn.Class, err)
		}
		if spawn.TargetX != nil && spawn.TargetY != nil {
			unit.SetTarget(vec(*spawn.TargetX, *spawn.TargetY))
		}
		if spawn.WithSensor {
			g.attachSensor(unit, g.Config.Rules.SensorWidth, g.Config.Rules.SensorHeight)
		}
	}
	return nil
}

// Start marks the simulation as running
func (g *Game) Start() {
	if !g.running.CompareAndSwap(false, true) {
		return
	}
	g.Logger.Info(context.Background(), "simulation started", "tick", g.tick())
	g.EventBus.Publish(&event.BaseEvent{
		EventType: event.SimulationStarted,
		Source:    g,
	})
}

// Stop marks the simulation as stopped
func (g *Game) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}
	g.Logger.Info(context.Background(), "simulation stopped", "tick", g.tick())
	g.EventBus.Publish(&event.BaseEvent{
		EventType: event.SimulationStopped,
		Source:    g,
	})
}

// Running reports whether Start has been called without a matching Stop
func (g *Game) Running() bool {
	return g.running.Load()
}

// Update advances the world by one fixed time step
func (g *Game) Update() {
	g.Step(g.TimeStep)
}

// Step advances the world by dt seconds. Events raised during the tick are
// published once the lock is released, so handlers may read the game.
func (g *Game) Step(dt float64) {
	start := time.Now()

	g.EntityLock.Lock()
	g.world.Update(float32(dt))
	g.CurrentTick++
	tick := g.CurrentTick
	events := g.pending
	g.pending = nil
	g.EntityLock.Unlock()

	g.Metrics.RecordTick(time.Since(start))

	for _, e := range events {
		g.EventBus.Publish(e)
	}
	g.EventBus.Publish(event.NewTickEvent(g, tick))
}

// Run ticks at the configured rate until ctx is cancelled
func (g *Game) Run(ctx context.Context) error {
	g.Start()
	defer g.Stop()

	ticker := time.NewTicker(time.Duration(g.TimeStep * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.Update()
		}
	}
}

// CheckIndex runs the full quadtree consistency check
func (g *Game) CheckIndex() error {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.Index.CheckConsistency()
}

// LastIndexError returns the result of the most recent periodic check
func (g *Game) LastIndexError() error {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.lastIndexErr
}

// IndexStats reports quadtree occupancy
func (g *Game) IndexStats() spatial.Stats {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.Index.Stats()
}

// Tick returns the number of completed ticks
func (g *Game) Tick() uint64 {
	return g.tick()
}

func (g *Game) tick() uint64 {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.CurrentTick
}

// queue defers e until the current tick releases the lock. Callers hold the
// write lock.
func (g *Game) queue(e event.Event) {
	g.pending = append(g.pending, e)
}

// flush publishes events queued outside a tick. It must be called without
// the lock held.
func (g *Game) flush(events []event.Event) {
	for _, e := range events {
		g.EventBus.Publish(e)
	}
}

func (g *Game) updateEntityMetrics() {
	g.Metrics.SetEntityCount(entity.KindUnit.String(), len(g.Units))
	g.Metrics.SetEntityCount(entity.KindStructure.String(), len(g.Structures))
	g.Metrics.SetEntityCount(entity.KindSensor.String(), len(g.Sensors))
}
