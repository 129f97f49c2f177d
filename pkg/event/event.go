// pkg/event/event.go
package event

import (
	"sync"

	"github.com/opd-ai/go-rts/pkg/physics"
)

// Type represents the type of event
type Type string

// Simulation event types
const (
	UnitSpawned        Type = "unit_spawned"
	UnitDestroyed      Type = "unit_destroyed"
	StructureBuilt     Type = "structure_built"
	StructureDestroyed Type = "structure_destroyed"
	SensorAttached     Type = "sensor_attached"
	CollisionRollback  Type = "collision_rollback"
	UnitArrived        Type = "unit_arrived"
	IndexInconsistent  Type = "index_inconsistent"
	SimulationStarted  Type = "simulation_started"
	SimulationStopped  Type = "simulation_stopped"
	TickCompleted      Type = "tick_completed"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription is returned by Subscribe; Cancel removes the handler
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching. Handlers run synchronously
// on the publishing goroutine.
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	var once sync.Once
	return &Subscription{
		ID:   id,
		Type: eventType,
		Cancel: func() {
			once.Do(func() { b.unsubscribe(eventType, id) })
		},
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, r := range handlers {
		if r.id != id {
			continue
		}
		// copy so in-flight Publish snapshots stay intact
		next := make([]registration, 0, len(handlers)-1)
		next = append(next, handlers[:i]...)
		next = append(next, handlers[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, eventType)
		} else {
			b.handlers[eventType] = next
		}
		return
	}
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, r := range handlers {
		r.handler(event)
	}
}

// UnitEvent contains information about unit lifecycle events
type UnitEvent struct {
	BaseEvent
	UnitID   uint64
	TeamID   int
	Position physics.Vector2D
}

// NewUnitEvent creates a new unit event
func NewUnitEvent(eventType Type, source interface{}, unitID uint64, teamID int, position physics.Vector2D) *UnitEvent {
	return &UnitEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		UnitID:   unitID,
		TeamID:   teamID,
		Position: position,
	}
}

// RollbackEvent reports a unit moved back to its previous position
type RollbackEvent struct {
	BaseEvent
	EntityID     uint64
	Attempted    physics.Vector2D
	RestoredTo   physics.Vector2D
	MapCollision bool

	// Set for object collisions: the deepest overlapping entity and how far
	// the attempted move pushed into it.
	BlockerID   uint64
	Penetration float64
}

// NewRollbackEvent creates a new collision rollback event
func NewRollbackEvent(source interface{}, entityID uint64, attempted, restored physics.Vector2D, mapCollision bool) *RollbackEvent {
	return &RollbackEvent{
		BaseEvent: BaseEvent{
			EventType: CollisionRollback,
			Source:    source,
		},
		EntityID:     entityID,
		Attempted:    attempted,
		RestoredTo:   restored,
		MapCollision: mapCollision,
	}
}

// IndexEvent reports a failed index consistency check
type IndexEvent struct {
	BaseEvent
	Tick uint64
	Err  error
}

// NewIndexEvent creates a new index inconsistency event
func NewIndexEvent(source interface{}, tick uint64, err error) *IndexEvent {
	return &IndexEvent{
		BaseEvent: BaseEvent{
			EventType: IndexInconsistent,
			Source:    source,
		},
		Tick: tick,
		Err:  err,
	}
}

// TickEvent is published after every completed tick, outside the entity lock
type TickEvent struct {
	BaseEvent
	Tick uint64
}

// NewTickEvent creates a new tick event
func NewTickEvent(source interface{}, tick uint64) *TickEvent {
	return &TickEvent{
		BaseEvent: BaseEvent{
			EventType: TickCompleted,
			Source:    source,
		},
		Tick: tick,
	}
}
