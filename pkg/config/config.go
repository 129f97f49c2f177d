// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid configuration")

// SimulationConfig contains configuration for a simulation run
type SimulationConfig struct {
	World         WorldConfig      `json:"world"`
	Index         IndexConfig      `json:"index"`
	Rules         SimulationRules  `json:"rules"`
	NetworkConfig NetworkConfig    `json:"network"`
	Teams         []TeamConfig     `json:"teams"`
	Units         []UnitSpawn      `json:"units"`
	Structures    []StructureSpawn `json:"structures"`
}

// WorldConfig describes the playable area and its static terrain
type WorldConfig struct {
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	TileSize float64  `json:"tileSize"`
	Layout   []string `json:"layout,omitempty"`
	Template string   `json:"template,omitempty"`
}

// IndexConfig tunes the quadtree
type IndexConfig struct {
	MinSize float64 `json:"minSize"`
	// ConsistencyCheckInterval runs the full index check every N ticks; 0 disables it.
	ConsistencyCheckInterval int `json:"consistencyCheckInterval"`
}

// SimulationRules contains tick-level rules
type SimulationRules struct {
	TickRate     int     `json:"tickRate"`
	SensorWidth  float64 `json:"sensorWidth"`
	SensorHeight float64 `json:"sensorHeight"`
	Seed         uint64  `json:"seed"`
}

// NetworkConfig contains HTTP and websocket configuration
type NetworkConfig struct {
	ServerAddress  string  `json:"serverAddress"`
	ServerPort     int     `json:"serverPort"`
	TicksPerState  int     `json:"ticksPerState"`
	MaxClients     int     `json:"maxClients"`
	SpawnRateLimit float64 `json:"spawnRateLimit"`
	SpawnBurst     int     `json:"spawnBurst"`
}

// TeamConfig contains configuration for a team
type TeamConfig struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// UnitSpawn places a unit at startup
type UnitSpawn struct {
	Class      string   `json:"class"`
	TeamID     int      `json:"teamID"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	TargetX    *float64 `json:"targetX,omitempty"`
	TargetY    *float64 `json:"targetY,omitempty"`
	WithSensor bool     `json:"withSensor"`
}

// StructureSpawn places a building at startup
type StructureSpawn struct {
	Name   string  `json:"name"`
	TeamID int     `json:"teamID"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// LoadConfig loads a configuration from a file
func LoadConfig(path string) (*SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config SimulationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.World.Template != "" && len(config.World.Layout) == 0 {
		if err := ApplyMapTemplate(&config, config.World.Template); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *SimulationConfig, path string) error {
	if config == nil {
		return fmt.Errorf("failed to marshal config: %w", ErrInvalidConfig)
	}
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a default simulation configuration
func DefaultConfig() *SimulationConfig {
	return &SimulationConfig{
		World: WorldConfig{
			Width:    4000,
			Height:   4000,
			TileSize: 100,
		},
		Index: IndexConfig{
			MinSize:                  400,
			ConsistencyCheckInterval: 0,
		},
		Rules: SimulationRules{
			TickRate:     20,
			SensorWidth:  120,
			SensorHeight: 120,
			Seed:         1,
		},
		NetworkConfig: NetworkConfig{
			ServerAddress:  "localhost:8080",
			ServerPort:     8080,
			TicksPerState:  3,
			MaxClients:     32,
			SpawnRateLimit: 5,
			SpawnBurst:     10,
		},
		Teams: []TeamConfig{
			{Name: "Blue", Color: "#0000FF"},
			{Name: "Red", Color: "#FF0000"},
		},
		Units: []UnitSpawn{
			{Class: "worker", TeamID: 0, X: 200, Y: 200, WithSensor: true},
			{Class: "tank", TeamID: 1, X: 3700, Y: 3700, WithSensor: true},
		},
		Structures: []StructureSpawn{
			{Name: "Blue HQ", TeamID: 0, X: 100, Y: 400, Width: 120, Height: 80},
			{Name: "Red HQ", TeamID: 1, X: 3700, Y: 3400, Width: 120, Height: 80},
		},
	}
}

// Validate checks the configuration for values the simulation cannot run with
func (c *SimulationConfig) Validate() error {
	var problems []string
	if c.World.Width <= 0 || c.World.Height <= 0 {
		problems = append(problems, fmt.Sprintf("world size %vx%v must be positive", c.World.Width, c.World.Height))
	}
	if c.World.TileSize <= 0 {
		problems = append(problems, "tile size must be positive")
	}
	if c.Index.MinSize <= 0 {
		problems = append(problems, "index minSize must be positive")
	}
	if c.Index.ConsistencyCheckInterval < 0 {
		problems = append(problems, "consistency check interval must not be negative")
	}
	if c.Rules.TickRate <= 0 || c.Rules.TickRate > 1000 {
		problems = append(problems, fmt.Sprintf("tick rate %d out of range 1-1000", c.Rules.TickRate))
	}
	if c.Rules.SensorWidth < 0 || c.Rules.SensorHeight < 0 {
		problems = append(problems, "sensor size must not be negative")
	}
	if c.NetworkConfig.TicksPerState <= 0 {
		problems = append(problems, "ticksPerState must be positive")
	}
	for i, row := range c.World.Layout {
		if len(row) != len(c.World.Layout[0]) {
			problems = append(problems, fmt.Sprintf("layout row %d is ragged", i))
			break
		}
	}
	for i, u := range c.Units {
		if u.TeamID < 0 || u.TeamID >= len(c.Teams) {
			problems = append(problems, fmt.Sprintf("unit %d references unknown team %d", i, u.TeamID))
		}
		if (u.TargetX == nil) != (u.TargetY == nil) {
			problems = append(problems, fmt.Sprintf("unit %d has a partial target", i))
		}
	}
	for i, s := range c.Structures {
		if s.Width <= 0 || s.Height <= 0 {
			problems = append(problems, fmt.Sprintf("structure %d has non-positive size", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
