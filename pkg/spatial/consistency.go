package spatial

import (
	"errors"
	"fmt"

	"github.com/opd-ai/go-rts/pkg/collision"
)

// ErrQuadtreeInconsistency marks a broken structural invariant. It points at
// a bug in the index or at a caller that changed a hitbox without relocating.
var ErrQuadtreeInconsistency = errors.New("quadtree inconsistency")

// InconsistencyError describes the first violated invariant found.
type InconsistencyError struct {
	Node   int32
	Object uint64
	Reason string
}

func (e *InconsistencyError) Error() string {
	if e.Object != 0 {
		return fmt.Sprintf("quadtree inconsistency at node %d, object %d: %s", e.Node, e.Object, e.Reason)
	}
	return fmt.Sprintf("quadtree inconsistency at node %d: %s", e.Node, e.Reason)
}

func (e *InconsistencyError) Unwrap() error {
	return ErrQuadtreeInconsistency
}

// CheckConsistency verifies the structural invariants of the tree. It is a
// diagnostic for tests and health probes, not part of the tick.
func (qt *QuadTree) CheckConsistency() error {
	if err := qt.checkStructure(); err != nil {
		return err
	}
	return qt.checkCache()
}

func (qt *QuadTree) checkStructure() error {
	for i := range qt.nodes {
		idx := int32(i)
		n := &qt.nodes[i]

		if _, cached := qt.leafSet[idx]; cached != n.leaf {
			return &InconsistencyError{Node: idx, Reason: fmt.Sprintf("leaf flag %v disagrees with leaf cache", n.leaf)}
		}
		if n.leaf {
			for _, child := range n.children {
				if child != noNode {
					return &InconsistencyError{Node: idx, Reason: "leaf has children"}
				}
			}
			continue
		}
		if len(n.virtual) > 0 || len(n.nonVirtual) > 0 {
			return &InconsistencyError{Node: idx, Reason: "internal node holds objects"}
		}

		var area float64
		for q, child := range n.children {
			if child == noNode {
				return &InconsistencyError{Node: idx, Reason: fmt.Sprintf("internal node missing child %d", q)}
			}
			c := &qt.nodes[child]
			if c.parent != idx {
				return &InconsistencyError{Node: child, Reason: "parent link does not point back"}
			}
			if !n.bounds.ContainsRect(c.bounds) {
				return &InconsistencyError{Node: idx, Reason: fmt.Sprintf("child %d bounds %v escape %v", child, c.bounds, n.bounds)}
			}
			area += c.bounds.Area()
		}
		if area != n.bounds.Area() {
			return &InconsistencyError{Node: idx, Reason: fmt.Sprintf("children cover area %v of %v", area, n.bounds.Area())}
		}
		for a := 0; a < 4; a++ {
			for b := a + 1; b < 4; b++ {
				ra := qt.nodes[n.children[a]].bounds
				rb := qt.nodes[n.children[b]].bounds
				if overlap, ok := ra.Intersection(rb); ok && overlap.Area() > 0 {
					return &InconsistencyError{Node: idx, Reason: fmt.Sprintf("children %d and %d overlap", a, b)}
				}
			}
		}
	}
	if len(qt.leafSet) != len(qt.leaves) {
		return &InconsistencyError{Node: rootIndex, Reason: "leaf cache holds duplicates"}
	}
	return nil
}

func (qt *QuadTree) checkCache() error {
	for id, cached := range qt.nodeCache {
		if len(cached) == 0 {
			return &InconsistencyError{Node: rootIndex, Object: id, Reason: "empty node cache entry"}
		}
		for i, idx := range cached {
			if leafCached(cached[:i], idx) {
				return &InconsistencyError{Node: idx, Object: id, Reason: "leaf cached twice"}
			}
			n := &qt.nodes[idx]
			if !n.leaf {
				return &InconsistencyError{Node: idx, Object: id, Reason: "cached node is not a leaf"}
			}
			obj, ok := findInLeaf(n, id)
			if !ok {
				return &InconsistencyError{Node: idx, Object: id, Reason: "cached leaf does not hold the object"}
			}
			if !n.bounds.Intersects(obj.Hitbox()) {
				return &InconsistencyError{Node: idx, Object: id, Reason: fmt.Sprintf("hitbox %v outside leaf %v", obj.Hitbox(), n.bounds)}
			}
		}
	}

	for _, idx := range qt.leaves {
		n := &qt.nodes[idx]
		for _, virtual := range []bool{true, false} {
			seen := make(map[uint64]struct{})
			for _, obj := range *n.list(virtual) {
				id := obj.ID()
				if _, dup := seen[id]; dup {
					return &InconsistencyError{Node: idx, Object: id, Reason: "object listed twice in one leaf"}
				}
				seen[id] = struct{}{}
				if obj.IsVirtual() != virtual {
					return &InconsistencyError{Node: idx, Object: id, Reason: "object filed under the wrong virtuality"}
				}
				if !leafCached(qt.nodeCache[id], idx) {
					return &InconsistencyError{Node: idx, Object: id, Reason: "leaf holds an object missing from the node cache"}
				}
			}
		}
	}
	return nil
}

func findInLeaf(n *node, id uint64) (collision.Collidable, bool) {
	for _, list := range [][]collision.Collidable{n.nonVirtual, n.virtual} {
		for _, obj := range list {
			if obj.ID() == id {
				return obj, true
			}
		}
	}
	return nil, false
}

func leafCached(cached []int32, idx int32) bool {
	for _, held := range cached {
		if held == idx {
			return true
		}
	}
	return false
}
