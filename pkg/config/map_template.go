// pkg/config/map_template.go
package config

import (
	"fmt"
	"strings"
)

// MapTemplate is a named, ready-made battlefield
type MapTemplate struct {
	Name        string
	Description string
	TileSize    float64
	Layout      []string
	Teams       []TeamConfig
	Structures  []StructureSpawn
}

var mapTemplates = map[string]MapTemplate{
	"open_field": {
		Name:        "Open Field",
		Description: "Walled arena with no interior obstacles",
		TileSize:    100,
		Layout:      borderedLayout(40, 40, nil),
		Teams: []TeamConfig{
			{Name: "Blue", Color: "#0000FF"},
			{Name: "Red", Color: "#FF0000"},
		},
		Structures: []StructureSpawn{
			{Name: "Blue HQ", TeamID: 0, X: 200, Y: 200, Width: 160, Height: 120},
			{Name: "Red HQ", TeamID: 1, X: 3640, Y: 3680, Width: 160, Height: 120},
		},
	},
	"crossroads": {
		Name:        "Crossroads",
		Description: "Four rock blocks leaving a plus-shaped corridor",
		TileSize:    100,
		Layout: borderedLayout(40, 40, func(col, row int) bool {
			inCorridor := (col >= 17 && col <= 22) || (row >= 17 && row <= 22)
			inBlock := col >= 6 && col <= 33 && row >= 6 && row <= 33
			return inBlock && !inCorridor
		}),
		Teams: []TeamConfig{
			{Name: "Blue", Color: "#0000FF"},
			{Name: "Red", Color: "#FF0000"},
			{Name: "Green", Color: "#00FF00"},
			{Name: "Yellow", Color: "#FFFF00"},
		},
		Structures: []StructureSpawn{
			{Name: "Blue HQ", TeamID: 0, X: 200, Y: 200, Width: 120, Height: 120},
			{Name: "Red HQ", TeamID: 1, X: 3680, Y: 200, Width: 120, Height: 120},
			{Name: "Green HQ", TeamID: 2, X: 200, Y: 3680, Width: 120, Height: 120},
			{Name: "Yellow HQ", TeamID: 3, X: 3680, Y: 3680, Width: 120, Height: 120},
		},
	},
	"skirmish": {
		Name:        "Skirmish",
		Description: "Small map split by a wall with a single gap",
		TileSize:    50,
		Layout: borderedLayout(32, 32, func(col, row int) bool {
			return col == 16 && (row < 14 || row > 17)
		}),
		Teams: []TeamConfig{
			{Name: "Blue", Color: "#0000FF"},
			{Name: "Red", Color: "#FF0000"},
		},
		Structures: []StructureSpawn{
			{Name: "Blue Depot", TeamID: 0, X: 100, Y: 750, Width: 100, Height: 100},
			{Name: "Red Depot", TeamID: 1, X: 1400, Y: 750, Width: 100, Height: 100},
		},
	},
}

// GetMapTemplate returns the named template, or nil when it does not exist
func GetMapTemplate(name string) *MapTemplate {
	t, ok := mapTemplates[name]
	if !ok {
		return nil
	}
	return &t
}

// ListMapTemplates returns template names mapped to their descriptions
func ListMapTemplates() map[string]string {
	out := make(map[string]string, len(mapTemplates))
	for key, t := range mapTemplates {
		out[key] = t.Description
	}
	return out
}

// ApplyMapTemplate replaces the world, teams and structures of config with
// the named template. Configured units are kept.
func ApplyMapTemplate(config *SimulationConfig, name string) error {
	t := GetMapTemplate(name)
	if t == nil {
		return fmt.Errorf("%w: unknown map template %q", ErrInvalidConfig, name)
	}

	config.World.Template = name
	config.World.TileSize = t.TileSize
	config.World.Layout = append([]string(nil), t.Layout...)
	config.World.Width = float64(len(t.Layout[0])) * t.TileSize
	config.World.Height = float64(len(t.Layout)) * t.TileSize
	config.Teams = append([]TeamConfig(nil), t.Teams...)
	config.Structures = append([]StructureSpawn(nil), t.Structures...)
	return nil
}

// borderedLayout builds a cols x rows layout walled on every edge, with
// blocked reporting interior rock.
func borderedLayout(cols, rows int, blocked func(col, row int) bool) []string {
	layout := make([]string, rows)
	for row := 0; row < rows; row++ {
		var sb strings.Builder
		for col := 0; col < cols; col++ {
			edge := row == 0 || col == 0 || row == rows-1 || col == cols-1
			if edge || (blocked != nil && blocked(col, row)) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		layout[row] = sb.String()
	}
	return layout
}
