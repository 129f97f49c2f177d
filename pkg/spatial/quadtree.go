// Package spatial provides the dynamic collision index: a quadtree whose
// shape is fixed at construction and whose leaves hold the objects that
// overlap them.
//
// Nodes live in a flat arena and refer to each other by index, so parent
// back-references never own anything and the structure is never reallocated
// after construction. Objects are tracked by ID in a node cache mapping each
// object to the leaves that currently hold it.
//
// The index is not safe for concurrent use; a simulation tick owns it.
package spatial

import (
	"errors"
	"fmt"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// ErrInvalidDimensions is returned for non-positive tree sizes.
var ErrInvalidDimensions = errors.New("invalid quadtree dimensions")

const (
	rootIndex int32 = 0
	noNode    int32 = -1
)

type node struct {
	bounds     physics.Rect
	parent     int32
	children   [4]int32
	leaf       bool
	depth      int
	virtual    []collision.Collidable
	nonVirtual []collision.Collidable
}

func (n *node) list(virtual bool) *[]collision.Collidable {
	if virtual {
		return &n.virtual
	}
	return &n.nonVirtual
}

// QuadTree indexes collidables over the rectangle (0, 0, width, height).
type QuadTree struct {
	nodes   []node
	leaves  []int32
	leafSet map[int32]struct{}
	// nodeCache maps an object ID to the ordered leaves that hold it.
	nodeCache map[uint64][]int32
	minSize   float64
	maxDepth  int
}

// NewQuadTree eagerly builds every node for a world of the given size. A node
// becomes a leaf once halving it would produce a side shorter than minSize.
func NewQuadTree(width, height, minSize float64) (*QuadTree, error) {
	if width <= 0 || height <= 0 || minSize <= 0 {
		return nil, fmt.Errorf("%w: %vx%v with minimum size %v", ErrInvalidDimensions, width, height, minSize)
	}

	qt := &QuadTree{
		leafSet:   make(map[int32]struct{}),
		nodeCache: make(map[uint64][]int32),
		minSize:   minSize,
	}
	qt.nodes = append(qt.nodes, node{
		bounds:   physics.NewRect(0, 0, width, height),
		parent:   noNode,
		children: [4]int32{noNode, noNode, noNode, noNode},
	})
	qt.build(rootIndex)
	return qt, nil
}

// build splits the node at idx top-down until the leaf threshold is reached.
func (qt *QuadTree) build(idx int32) {
	bounds := qt.nodes[idx].bounds
	depth := qt.nodes[idx].depth
	if depth > qt.maxDepth {
		qt.maxDepth = depth
	}

	if bounds.MinHalfExtent() < qt.minSize {
		qt.nodes[idx].leaf = true
		qt.leaves = append(qt.leaves, idx)
		qt.leafSet[idx] = struct{}{}
		return
	}

	quads := bounds.Split()
	for q, rect := range quads {
		child := int32(len(qt.nodes))
		qt.nodes = append(qt.nodes, node{
			bounds:   rect,
			parent:   idx,
			children: [4]int32{noNode, noNode, noNode, noNode},
			depth:    depth + 1,
		})
		qt.nodes[idx].children[q] = child
	}
	for _, child := range qt.nodes[idx].children {
		qt.build(child)
	}
}

// Bounds returns the area covered by the tree.
func (qt *QuadTree) Bounds() physics.Rect {
	return qt.nodes[rootIndex].bounds
}

// MinSize returns the leaf threshold the tree was built with.
func (qt *QuadTree) MinSize() float64 {
	return qt.minSize
}

// Len returns the number of indexed objects.
func (qt *QuadTree) Len() int {
	return len(qt.nodeCache)
}

// Contains reports whether obj is currently held by at least one leaf.
func (qt *QuadTree) Contains(obj collision.Collidable) bool {
	_, ok := qt.nodeCache[obj.ID()]
	return ok
}

// Leaves returns the bounds of the leaves currently holding obj, primary
// leaf first.
func (qt *QuadTree) Leaves(obj collision.Collidable) []physics.Rect {
	cached := qt.nodeCache[obj.ID()]
	out := make([]physics.Rect, 0, len(cached))
	for _, idx := range cached {
		out = append(out, qt.nodes[idx].bounds)
	}
	return out
}

// Stats summarises the tree for diagnostics and metrics.
type Stats struct {
	Nodes          int     `json:"nodes"`
	Leaves         int     `json:"leaves"`
	Depth          int     `json:"depth"`
	Objects        int     `json:"objects"`
	Memberships    int     `json:"memberships"`
	OccupiedLeaves int     `json:"occupied_leaves"`
	MaxLeafLoad    int     `json:"max_leaf_load"`
	MinSize        float64 `json:"min_size"`
}

// Stats walks the leaf cache and reports occupancy.
func (qt *QuadTree) Stats() Stats {
	s := Stats{
		Nodes:   len(qt.nodes),
		Leaves:  len(qt.leaves),
		Depth:   qt.maxDepth,
		Objects: len(qt.nodeCache),
		MinSize: qt.minSize,
	}
	for _, idx := range qt.leaves {
		n := &qt.nodes[idx]
		load := len(n.virtual) + len(n.nonVirtual)
		s.Memberships += load
		if load > 0 {
			s.OccupiedLeaves++
		}
		if load > s.MaxLeafLoad {
			s.MaxLeafLoad = load
		}
	}
	return s
}

var _ collision.ObjectCollisionContainer = (*QuadTree)(nil)
