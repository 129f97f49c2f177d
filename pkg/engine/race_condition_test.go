// pkg/engine/race_condition_test.go
package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/go-rts/pkg/config"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// TestGameRaceCondition runs ticks while other goroutines spawn, remove and
// read entities. Run with -race to catch unguarded map or index access.
func TestGameRaceCondition(t *testing.T) {
	game, err := NewGame(config.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	game.Start()

	var wg sync.WaitGroup
	done := make(chan struct{})

	// Continuous ticks
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				game.Update()
				time.Sleep(1 * time.Millisecond)
			}
		}
	}()

	// Spawn and remove units
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			pos := physics.Vector2D{X: 1000 + float64(i%10)*50, Y: 1000}
			id, err := game.SpawnUnit(entity.Worker, 0, pos)
			if err != nil {
				if errors.Is(err, ErrPlacementBlocked) {
					continue
				}
				t.Errorf("failed to spawn unit: %v", err)
				return
			}
			if _, err := game.AttachSensor(id, 0, 0); err != nil {
				t.Errorf("failed to attach sensor: %v", err)
				return
			}
			_ = game.SetTarget(id, physics.Vector2D{X: 2000, Y: 2000})
			if err := game.RemoveEntity(id); err != nil {
				t.Errorf("failed to remove unit: %v", err)
				return
			}
			time.Sleep(1 * time.Millisecond)
		}
	}()

	// Readers
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = game.GetState()
			_ = game.UnitsInArea(physics.NewRect(0, 0, 2000, 2000))
			_ = game.IndexStats()
			if err := game.CheckIndex(); err != nil {
				t.Errorf("index inconsistent under load: %v", err)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	close(done)

	wg.Wait()
	game.Stop()

	if len(game.Units) != 2 {
		t.Errorf("expected only the configured units to remain, got %d", len(game.Units))
	}
}

// TestGameConcurrentRun drives the ticker loop while spawning
func TestGameConcurrentRun(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rules.TickRate = 200
	game, err := NewGame(cfg)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- game.Run(ctx) }()

	for i := 0; i < 20; i++ {
		if _, err := game.SpawnUnit(entity.Infantry, 1, physics.Vector2D{X: 500 + float64(i)*30, Y: 2500}); err != nil {
			t.Errorf("spawn %d: %v", i, err)
		}
	}

	if err := <-runErr; err != nil {
		t.Errorf("Run returned %v", err)
	}
	if game.Running() {
		t.Error("game still running after Run returned")
	}
	if game.Tick() == 0 {
		t.Error("Run did not tick")
	}
}
