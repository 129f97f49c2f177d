// Package render draws the world as ASCII frames for terminals and provides
// a no-op renderer for headless runs.
package render

import (
	"context"

	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/logging"
)

// NullRenderer discards drawing calls, logging them at debug level
type NullRenderer struct {
	logger *logging.Logger
	drawn  int
}

// NewNullRenderer creates a NullRenderer. A nil logger discards output.
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NullRenderer{logger: logger.Component("render")}
}

// Drawn returns how many entities were rendered since the last Clear
func (d *NullRenderer) Drawn() int {
	return d.drawn
}

// Clear implements entity.Renderer.
func (d *NullRenderer) Clear() {
	d.drawn = 0
}

// Present implements entity.Renderer.
func (d *NullRenderer) Present() {
	d.logger.Debug(context.Background(), "frame presented", "entities", d.drawn)
}

// RenderUnit implements entity.Renderer.
func (d *NullRenderer) RenderUnit(unit *entity.Unit) {
	if unit == nil {
		return
	}
	d.drawn++
}

// RenderStructure implements entity.Renderer.
func (d *NullRenderer) RenderStructure(structure *entity.Structure) {
	if structure == nil {
		return
	}
	d.drawn++
}

// RenderSensor implements entity.Renderer.
func (d *NullRenderer) RenderSensor(sensor *entity.Sensor) {
	if sensor == nil {
		return
	}
	d.drawn++
}
