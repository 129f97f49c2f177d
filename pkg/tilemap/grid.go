// Package tilemap holds the static terrain the collision response consults.
// Terrain never moves, so a flat grid of blocked tiles is enough.
package tilemap

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// ErrInvalidLayout is returned for empty or ragged ASCII layouts.
var ErrInvalidLayout = errors.New("invalid map layout")

// Grid is a row-major grid of square tiles, stored as cells[row*cols+col].
type Grid struct {
	cols, rows int
	tileSize   float64
	blocked    []bool
}

var _ collision.MapCollisionContainer = (*Grid)(nil)

// NewGrid creates an open grid covering width x height world units.
func NewGrid(width, height, tileSize float64) *Grid {
	if tileSize <= 0 {
		tileSize = 1
	}
	cols := int(math.Ceil(width / tileSize))
	rows := int(math.Ceil(height / tileSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &Grid{
		cols:     cols,
		rows:     rows,
		tileSize: tileSize,
		blocked:  make([]bool, cols*rows),
	}
}

// ParseLayout builds a grid from rows of '#' (blocked) and '.' (open) tiles.
func ParseLayout(layout []string, tileSize float64) (*Grid, error) {
	if len(layout) == 0 || len(layout[0]) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidLayout)
	}
	cols := len(layout[0])
	g := NewGrid(float64(cols)*tileSize, float64(len(layout))*tileSize, tileSize)
	for row, line := range layout {
		if len(line) != cols {
			return nil, fmt.Errorf("%w: row %d has %d tiles, expected %d", ErrInvalidLayout, row, len(line), cols)
		}
		for col, c := range line {
			switch c {
			case '#':
				g.SetBlocked(col, row, true)
			case '.', ' ':
			default:
				return nil, fmt.Errorf("%w: unknown tile %q at %d,%d", ErrInvalidLayout, c, col, row)
			}
		}
	}
	return g, nil
}

// Width returns the world width covered by the grid.
func (g *Grid) Width() float64 { return float64(g.cols) * g.tileSize }

// Height returns the world height covered by the grid.
func (g *Grid) Height() float64 { return float64(g.rows) * g.tileSize }

// TileSize returns the side length of a tile.
func (g *Grid) TileSize() float64 { return g.tileSize }

// Dimensions returns the number of columns and rows.
func (g *Grid) Dimensions() (cols, rows int) { return g.cols, g.rows }

// SetBlocked marks a tile; coordinates outside the grid are ignored.
func (g *Grid) SetBlocked(col, row int, blocked bool) {
	if col < 0 || row < 0 || col >= g.cols || row >= g.rows {
		return
	}
	g.blocked[row*g.cols+col] = blocked
}

// Blocked reports whether a tile is blocked. Tiles off the grid are blocked.
func (g *Grid) Blocked(col, row int) bool {
	if col < 0 || row < 0 || col >= g.cols || row >= g.rows {
		return true
	}
	return g.blocked[row*g.cols+col]
}

// Block marks every tile touched by area.
func (g *Grid) Block(area physics.Rect) {
	c0, r0, c1, r1 := g.span(area)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			g.SetBlocked(col, row, true)
		}
	}
}

// IsBlocking reports whether area leaves the map or covers a blocked tile.
// Touching the far edge of a tile does not count as covering it.
func (g *Grid) IsBlocking(area physics.Rect) bool {
	if area.Empty() {
		return false
	}
	if area.X < 0 || area.Y < 0 || area.Right() > g.Width() || area.Bottom() > g.Height() {
		return true
	}
	c0, r0, c1, r1 := g.span(area)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if g.Blocked(col, row) {
				return true
			}
		}
	}
	return false
}

// BlockedTiles returns the world rectangles of every blocked tile.
func (g *Grid) BlockedTiles() []physics.Rect {
	var tiles []physics.Rect
	for i, b := range g.blocked {
		if !b {
			continue
		}
		col, row := i%g.cols, i/g.cols
		tiles = append(tiles, physics.NewRect(float64(col)*g.tileSize, float64(row)*g.tileSize, g.tileSize, g.tileSize))
	}
	return tiles
}

// Rows renders the grid in the layout format ParseLayout reads.
func (g *Grid) Rows() []string {
	rows := make([]string, g.rows)
	line := make([]byte, g.cols)
	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			if g.blocked[row*g.cols+col] {
				line[col] = '#'
			} else {
				line[col] = '.'
			}
		}
		rows[row] = string(line)
	}
	return rows
}

func (g *Grid) String() string {
	return strings.Join(g.Rows(), "\n") + "\n"
}

// span converts area to an inclusive tile range, treating right and bottom
// edges as exclusive so a box flush against a tile does not claim it.
func (g *Grid) span(area physics.Rect) (c0, r0, c1, r1 int) {
	c0 = int(math.Floor(area.X / g.tileSize))
	r0 = int(math.Floor(area.Y / g.tileSize))
	c1 = int(math.Ceil(area.Right()/g.tileSize)) - 1
	r1 = int(math.Ceil(area.Bottom()/g.tileSize)) - 1
	if c1 < c0 {
		c1 = c0
	}
	if r1 < r0 {
		r1 = r0
	}
	return c0, r0, c1, r1
}
