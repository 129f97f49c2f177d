package spatial

import "github.com/opd-ai/go-rts/pkg/collision"

// Add trickles obj down from the root into every leaf its hitbox touches.
// An object straddling a boundary lands in several leaves. Objects entirely
// outside the tree are ignored.
func (qt *QuadTree) Add(obj collision.Collidable) {
	qt.trickleDown(obj, rootIndex)
}

// Remove drops obj from every leaf that holds it. It walks the whole tree
// rather than trusting the hitbox, so it also cleans up after callers that
// mutated the hitbox without relocating.
func (qt *QuadTree) Remove(obj collision.Collidable) {
	qt.removeDown(obj, rootIndex)
	delete(qt.nodeCache, obj.ID())
}

// Update relocates obj if it moved since the previous tick. Unmoved objects
// keep their leaves untouched.
func (qt *QuadTree) Update(obj collision.Collidable) {
	if obj.Position().Equal(obj.OldPosition()) {
		return
	}
	qt.Relocate(obj)
}

// Relocate re-indexes obj at its current hitbox. Never-indexed objects are
// added from the root. Otherwise every leaf but the primary one is dropped and
// the object bubbles up from the primary leaf to the first ancestor that
// fully contains its hitbox, then trickles back down from there. Most moves
// resolve within one or two ancestor hops.
func (qt *QuadTree) Relocate(obj collision.Collidable) {
	cached, ok := qt.nodeCache[obj.ID()]
	if !ok {
		qt.Add(obj)
		return
	}

	snapshot := append([]int32(nil), cached...)
	for _, idx := range snapshot[1:] {
		qt.removeUp(obj, idx)
	}
	qt.bubbleUp(obj, snapshot[0])
}

// trickleDown adds obj to every leaf under idx whose bounds touch its hitbox.
func (qt *QuadTree) trickleDown(obj collision.Collidable, idx int32) {
	hitbox := obj.Hitbox()
	n := &qt.nodes[idx]
	if !n.bounds.Intersects(hitbox) {
		return
	}
	if n.leaf {
		qt.insertLeaf(obj, idx)
		return
	}
	for _, child := range n.children {
		qt.trickleDown(obj, child)
	}
}

func (qt *QuadTree) insertLeaf(obj collision.Collidable, idx int32) {
	id := obj.ID()
	if leafCached(qt.nodeCache[id], idx) {
		return
	}
	list := qt.nodes[idx].list(obj.IsVirtual())
	*list = append(*list, obj)
	qt.nodeCache[id] = append(qt.nodeCache[id], idx)
}

// removeDown removes obj from every leaf reachable from idx.
func (qt *QuadTree) removeDown(obj collision.Collidable, idx int32) {
	n := &qt.nodes[idx]
	if n.leaf {
		if removeFromList(&n.virtual, obj.ID()) || removeFromList(&n.nonVirtual, obj.ID()) {
			qt.forgetLeaf(obj.ID(), idx)
		}
		return
	}
	for _, child := range n.children {
		qt.removeDown(obj, child)
	}
}

// removeUp removes obj from the single node idx and from that node's entry
// in the cache. Other leaves holding obj are left alone.
func (qt *QuadTree) removeUp(obj collision.Collidable, idx int32) {
	n := &qt.nodes[idx]
	if !removeFromList(n.list(obj.IsVirtual()), obj.ID()) {
		removeFromList(n.list(!obj.IsVirtual()), obj.ID())
	}
	qt.forgetLeaf(obj.ID(), idx)
}

// bubbleUp takes obj out of its primary leaf and walks towards the root until
// a node fully contains the hitbox, then re-inserts from that node.
func (qt *QuadTree) bubbleUp(obj collision.Collidable, leaf int32) {
	qt.removeUp(obj, leaf)
	qt.trickleDownFromFirstValidParent(obj, leaf)
}

func (qt *QuadTree) trickleDownFromFirstValidParent(obj collision.Collidable, idx int32) {
	hitbox := obj.Hitbox()
	for idx != rootIndex && !qt.nodes[idx].bounds.ContainsRect(hitbox) {
		idx = qt.nodes[idx].parent
	}
	qt.trickleDown(obj, idx)
}

func (qt *QuadTree) forgetLeaf(id uint64, idx int32) {
	cached := qt.nodeCache[id]
	for i, held := range cached {
		if held != idx {
			continue
		}
		cached = append(cached[:i], cached[i+1:]...)
		break
	}
	if len(cached) == 0 {
		delete(qt.nodeCache, id)
		return
	}
	qt.nodeCache[id] = cached
}

// removeFromList deletes the entry with the given ID, preserving order.
func removeFromList(list *[]collision.Collidable, id uint64) bool {
	for i, obj := range *list {
		if obj.ID() != id {
			continue
		}
		*list = append((*list)[:i], (*list)[i+1:]...)
		return true
	}
	return false
}
