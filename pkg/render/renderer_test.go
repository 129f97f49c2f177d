// pkg/render/renderer_test.go
package render

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/logging"
	"github.com/opd-ai/go-rts/pkg/physics"
)

func TestNullRenderer_CountsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	renderer := NewNullRenderer(logging.NewLoggerWithWriter(&buf, slog.LevelDebug))

	unit := entity.NewUnit(entity.Worker, 0, physics.Vector2D{X: 10, Y: 10})
	renderer.Clear()
	unit.Render(renderer)
	entity.NewStructure("Depot", 0, physics.Vector2D{X: 50, Y: 50}, 20, 20).Render(renderer)
	entity.NewSensor(unit, 40, 40).Render(renderer)
	renderer.Present()

	if renderer.Drawn() != 3 {
		t.Errorf("expected 3 entities drawn, got %d", renderer.Drawn())
	}
	if !strings.Contains(buf.String(), "frame presented") {
		t.Errorf("expected present to be logged, got: %s", buf.String())
	}

	renderer.Clear()
	if renderer.Drawn() != 0 {
		t.Errorf("Clear should reset the count, got %d", renderer.Drawn())
	}
}

func TestNullRenderer_IgnoresNil(t *testing.T) {
	renderer := NewNullRenderer(nil)

	renderer.RenderUnit(nil)
	renderer.RenderStructure(nil)
	renderer.RenderSensor(nil)

	if renderer.Drawn() != 0 {
		t.Errorf("nil entities should not be counted, got %d", renderer.Drawn())
	}
}

func TestNullRenderer_ImplementsRenderer(t *testing.T) {
	var _ entity.Renderer = NewNullRenderer(nil)
	var _ entity.Renderer = NewTerminalRenderer(&bytes.Buffer{}, 1, 1, 1)
}
