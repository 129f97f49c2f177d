package spatial

import (
	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// CollisionBucket returns the non-virtual objects sharing at least one leaf
// with obj, each once. It includes obj itself when obj is non-virtual and is
// empty for objects that are not indexed.
func (qt *QuadTree) CollisionBucket(obj collision.Collidable) []collision.Collidable {
	cached := qt.nodeCache[obj.ID()]
	if len(cached) == 0 {
		return nil
	}
	if len(cached) == 1 {
		leaf := qt.nodes[cached[0]].nonVirtual
		return append([]collision.Collidable(nil), leaf...)
	}

	seen := make(map[uint64]struct{})
	var bucket []collision.Collidable
	for _, idx := range cached {
		for _, other := range qt.nodes[idx].nonVirtual {
			if _, dup := seen[other.ID()]; dup {
				continue
			}
			seen[other.ID()] = struct{}{}
			bucket = append(bucket, other)
		}
	}
	return bucket
}

// Collisions returns the bucket candidates, other than obj, for which pred
// holds. Identity is by ID, so distinct objects stacked on the same
// coordinates are still compared.
func (qt *QuadTree) Collisions(obj collision.Collidable, pred collision.Predicate) []collision.Collidable {
	id := obj.ID()
	var hits []collision.Collidable
	for _, candidate := range qt.CollisionBucket(obj) {
		if candidate.IsVirtual() || candidate.ID() == id {
			continue
		}
		if pred(obj, candidate) {
			hits = append(hits, candidate)
		}
	}
	return hits
}

// CollisionBuckets returns the non-virtual objects of every occupied leaf for
// broad-phase batch work. An object straddling leaves appears in each of
// them, so callers partitioning work by bucket must tolerate duplicates.
func (qt *QuadTree) CollisionBuckets() [][]collision.Collidable {
	var buckets [][]collision.Collidable
	for _, idx := range qt.leaves {
		objs := qt.nodes[idx].nonVirtual
		if len(objs) == 0 {
			continue
		}
		buckets = append(buckets, append([]collision.Collidable(nil), objs...))
	}
	return buckets
}

// ObjectsInArea returns every non-virtual object whose own hitbox intersects
// area, each reported once.
func (qt *QuadTree) ObjectsInArea(area physics.Rect) []collision.Collidable {
	seen := make(map[uint64]struct{})
	var found []collision.Collidable
	qt.collectInArea(rootIndex, area, seen, &found)
	return found
}

func (qt *QuadTree) collectInArea(idx int32, area physics.Rect, seen map[uint64]struct{}, found *[]collision.Collidable) {
	n := &qt.nodes[idx]
	if !n.bounds.Intersects(area) {
		return
	}
	if !n.leaf {
		for _, child := range n.children {
			qt.collectInArea(child, area, seen, found)
		}
		return
	}
	for _, obj := range n.nonVirtual {
		if _, dup := seen[obj.ID()]; dup {
			continue
		}
		if !obj.Hitbox().Intersects(area) {
			continue
		}
		seen[obj.ID()] = struct{}{}
		*found = append(*found, obj)
	}
}
