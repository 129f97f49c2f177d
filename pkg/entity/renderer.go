package entity

// Renderer draws world entities
type Renderer interface {
	RenderUnit(unit *Unit)
	RenderStructure(structure *Structure)
	RenderSensor(sensor *Sensor)
	Clear()
	Present()
}
