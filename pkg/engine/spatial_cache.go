// pkg/engine/spatial_cache.go
package engine

import (
	"slices"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/entity"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// SpatialCache answers area queries over the index. It takes no locks: the
// tick systems call it under the write lock, and Game's exported query
// methods wrap it in the read lock.
type SpatialCache struct {
	game *Game
}

// NewSpatialCache creates the query facade for g
func NewSpatialCache(g *Game) *SpatialCache {
	return &SpatialCache{game: g}
}

// UnitsInArea returns the units whose hitbox intersects area, in ID order
func (c *SpatialCache) UnitsInArea(area physics.Rect) []*entity.Unit {
	return c.unitsInArea(area, nil)
}

// CollidableObjectsInArea returns every non-virtual object whose hitbox
// intersects area, in ID order
func (c *SpatialCache) CollidableObjectsInArea(area physics.Rect) []collision.Collidable {
	objs := c.game.Index.ObjectsInArea(area)
	slices.SortFunc(objs, func(a, b collision.Collidable) int {
		return cmpID(a.ID(), b.ID())
	})
	return objs
}

func (c *SpatialCache) unitsInArea(area physics.Rect, exclude *entity.Unit) []*entity.Unit {
	var units []*entity.Unit
	for _, obj := range c.CollidableObjectsInArea(area) {
		u, ok := obj.(*entity.Unit)
		if !ok || u == exclude {
			continue
		}
		units = append(units, u)
	}
	return units
}
