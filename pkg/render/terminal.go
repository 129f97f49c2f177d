package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/opd-ai/go-rts/pkg/engine"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/physics"
)

const (
	glyphEmpty     = ' '
	glyphWall      = '#'
	glyphStructure = '='
	glyphSensor    = '+'
)

// TerminalRenderer draws an ASCII view of the world. Each character cell
// covers scale x scale world units around the view center.
type TerminalRenderer struct {
	out       io.Writer
	width     int
	height    int
	buffer    [][]rune
	scale     float64
	centerPos physics.Vector2D
	status    string
}

// NewTerminalRenderer creates a renderer writing frames to out
func NewTerminalRenderer(out io.Writer, width, height int, scale float64) *TerminalRenderer {
	buffer := make([][]rune, height)
	for i := range buffer {
		buffer[i] = make([]rune, width)
	}
	r := &TerminalRenderer{
		out:    out,
		width:  width,
		height: height,
		buffer: buffer,
		scale:  scale,
	}
	r.Clear()
	return r
}

// SetCenter sets the world position shown in the middle of the frame
func (r *TerminalRenderer) SetCenter(pos physics.Vector2D) {
	r.centerPos = pos
}

// FitWorld centers the view on world and picks a scale showing all of it
func (r *TerminalRenderer) FitWorld(world physics.Rect) {
	r.centerPos = world.Center()
	r.scale = max(world.W/float64(r.width), world.H/float64(r.height))
}

func (r *TerminalRenderer) worldToScreen(pos physics.Vector2D) (int, int) {
	screenX := int((pos.X-r.centerPos.X)/r.scale + float64(r.width)/2)
	screenY := int((pos.Y-r.centerPos.Y)/r.scale + float64(r.height)/2)
	return screenX, screenY
}

func (r *TerminalRenderer) plot(pos physics.Vector2D, glyph rune) {
	x, y := r.worldToScreen(pos)
	if x >= 0 && x < r.width && y >= 0 && y < r.height {
		r.buffer[y][x] = glyph
	}
}

func (r *TerminalRenderer) fill(area physics.Rect, glyph rune) {
	x0, y0 := r.worldToScreen(area.Min())
	x1, y1 := r.worldToScreen(physics.Vector2D{X: area.Right(), Y: area.Bottom()})
	for y := max(y0, 0); y <= min(y1, r.height-1); y++ {
		for x := max(x0, 0); x <= min(x1, r.width-1); x++ {
			r.buffer[y][x] = glyph
		}
	}
}

// Clear implements entity.Renderer
func (r *TerminalRenderer) Clear() {
	for y := range r.buffer {
		for x := range r.buffer[y] {
			r.buffer[y][x] = glyphEmpty
		}
	}
	r.status = ""
}

// Frame returns the current buffer with a border and the status line
func (r *TerminalRenderer) Frame() string {
	var b strings.Builder
	border := "+" + strings.Repeat("-", r.width) + "+\n"
	b.WriteString(border)
	for y := range r.buffer {
		b.WriteByte('|')
		b.WriteString(string(r.buffer[y]))
		b.WriteString("|\n")
	}
	b.WriteString(border)
	if r.status != "" {
		b.WriteString(r.status)
		b.WriteByte('\n')
	}
	return b.String()
}

// Present implements entity.Renderer
func (r *TerminalRenderer) Present() {
	w := bufio.NewWriter(r.out)
	w.WriteString("\033[H\033[2J")
	w.WriteString(r.Frame())
	w.Flush()
}

// RenderUnit implements entity.Renderer
func (r *TerminalRenderer) RenderUnit(unit *entity.Unit) {
	r.plot(unit.Center(), unitGlyph(unit.Class.String(), unit.TeamID))
}

// RenderStructure implements entity.Renderer
func (r *TerminalRenderer) RenderStructure(structure *entity.Structure) {
	r.fill(structure.Hitbox(), glyphStructure)
}

// RenderSensor implements entity.Renderer
func (r *TerminalRenderer) RenderSensor(sensor *entity.Sensor) {
	r.corners(sensor.Hitbox())
}

func (r *TerminalRenderer) corners(area physics.Rect) {
	for _, p := range []physics.Vector2D{
		area.Min(),
		{X: area.Right(), Y: area.Y},
		{X: area.X, Y: area.Bottom()},
		{X: area.Right(), Y: area.Bottom()},
	} {
		x, y := r.worldToScreen(p)
		if x >= 0 && x < r.width && y >= 0 && y < r.height && r.buffer[y][x] == glyphEmpty {
			r.buffer[y][x] = glyphSensor
		}
	}
}

// RenderMap draws the blocking tiles of a map snapshot
func (r *TerminalRenderer) RenderMap(m engine.MapState) {
	for row, line := range m.Layout {
		for col, c := range line {
			if c != glyphWall {
				continue
			}
			tile := physics.NewRect(float64(col)*m.TileSize, float64(row)*m.TileSize, m.TileSize, m.TileSize)
			r.fill(tile, glyphWall)
		}
	}
}

// DrawState renders a full snapshot: terrain, sensors, structures, then units
func (r *TerminalRenderer) DrawState(state *engine.GameState, m *engine.MapState) {
	r.Clear()
	if m != nil {
		r.RenderMap(*m)
	}
	for _, s := range state.Sensors {
		r.corners(s.Bounds)
	}
	for _, s := range state.Structures {
		r.fill(s.Bounds, glyphStructure)
	}
	for _, u := range state.Units {
		center := u.Position.Add(physics.Vector2D{X: u.Radius, Y: u.Radius})
		r.plot(center, unitGlyph(u.Class, u.TeamID))
	}
	r.status = fmt.Sprintf("tick %d  units %d  structures %d", state.Tick, len(state.Units), len(state.Structures))
}

// unitGlyph is the class initial, upper case for team 0 and lower case otherwise
func unitGlyph(class string, teamID int) rune {
	if class == "" {
		return '?'
	}
	g := rune(class[0])
	if teamID == 0 {
		return unicode.ToUpper(g)
	}
	return unicode.ToLower(g)
}
