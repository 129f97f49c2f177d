package spatial

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-rts/pkg/collision"
	"github.com/opd-ai/go-rts/pkg/physics"
)

// box is a minimal square collidable for index tests.
type box struct {
	id       uint64
	pos, old physics.Vector2D
	size     float64
	virtual  bool
	collided bool
}

func newBox(id uint64, x, y, size float64) *box {
	p := physics.Vector2D{X: x, Y: y}
	return &box{id: id, pos: p, old: p, size: size}
}

func (b *box) ID() uint64                          { return b.id }
func (b *box) Position() physics.Vector2D          { return b.pos }
func (b *box) OldPosition() physics.Vector2D       { return b.old }
func (b *box) SetPosition(p physics.Vector2D)      { b.pos = p }
func (b *box) Radius() (float64, error)            { return b.size / 2, nil }
func (b *box) Hitbox() physics.Rect                { return physics.RectAt(b.pos, b.size, b.size) }
func (b *box) IsVirtual() bool                     { return b.virtual }
func (b *box) CollisionInLastTick() (bool, error)  { return b.collided, nil }
func (b *box) SetCollisionInLastTick(c bool) error { b.collided = c; return nil }
func (b *box) Capabilities() collision.Capability  { return collision.ObjectCollidable }

// moveBy starts a new tick for b and shifts it by (dx, dy).
func (b *box) moveBy(dx, dy float64) {
	b.old = b.pos
	b.pos = b.pos.Add(physics.Vector2D{X: dx, Y: dy})
}

func ids(objs []collision.Collidable) []uint64 {
	out := make([]uint64, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.ID())
	}
	return out
}

func newTestTree(t testing.TB) *QuadTree {
	t.Helper()
	qt, err := NewQuadTree(4000, 4000, 400)
	require.NoError(t, err)
	return qt
}

func TestNewQuadTree_Shape(t *testing.T) {
	qt := newTestTree(t)

	stats := qt.Stats()
	assert.Equal(t, 85, stats.Nodes)
	assert.Equal(t, 64, stats.Leaves)
	assert.Equal(t, 3, stats.Depth)
	assert.Equal(t, 0, stats.Objects)
	assert.Equal(t, physics.NewRect(0, 0, 4000, 4000), qt.Bounds())
	require.NoError(t, qt.CheckConsistency())

	for _, idx := range qt.leaves {
		assert.Equal(t, 500.0, qt.nodes[idx].bounds.W)
		assert.Equal(t, 500.0, qt.nodes[idx].bounds.H)
	}
}

func TestNewQuadTree_OddDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height float64
		minSize       float64
	}{
		{"odd_square", 999, 999, 50},
		{"wide", 1025, 333, 40},
		{"tiny", 3, 3, 1},
		{"smaller_than_min", 10, 10, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qt, err := NewQuadTree(tt.width, tt.height, tt.minSize)
			require.NoError(t, err)
			require.NoError(t, qt.CheckConsistency())

			for i := range qt.nodes {
				n := &qt.nodes[i]
				if n.leaf {
					assert.Less(t, n.bounds.MinHalfExtent(), tt.minSize, "leaf %v could still split", n.bounds)
				} else {
					assert.GreaterOrEqual(t, n.bounds.MinHalfExtent(), tt.minSize, "internal %v too small", n.bounds)
				}
			}
		})
	}
}

func TestNewQuadTree_InvalidDimensions(t *testing.T) {
	for _, dims := range [][3]float64{{0, 10, 1}, {10, -1, 1}, {10, 10, 0}} {
		_, err := NewQuadTree(dims[0], dims[1], dims[2])
		assert.ErrorIs(t, err, ErrInvalidDimensions)
	}
}

func TestQuadTree_StraddlingCenter(t *testing.T) {
	qt := newTestTree(t)

	straddler := newBox(1, 1990, 1990, 20)
	nw := newBox(2, 1600, 1600, 10)
	ne := newBox(3, 2300, 1600, 10)
	sw := newBox(4, 1600, 2300, 10)
	se := newBox(5, 2300, 2300, 10)
	far := newBox(6, 100, 100, 10)

	for _, b := range []*box{straddler, nw, ne, sw, se, far} {
		qt.Add(b)
	}
	require.NoError(t, qt.CheckConsistency())
	require.Len(t, qt.Leaves(straddler), 4)

	bucket := ids(qt.CollisionBucket(straddler))
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, bucket)

	all := ids(qt.ObjectsInArea(qt.Bounds()))
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5, 6}, all)

	t.Run("move_keeps_straddling_membership", func(t *testing.T) {
		straddler.moveBy(5, 5)
		qt.Update(straddler)

		require.NoError(t, qt.CheckConsistency())
		assert.Len(t, qt.Leaves(straddler), 4)
		assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, ids(qt.CollisionBucket(straddler)))
	})
}

func TestQuadTree_UpdateNoOp(t *testing.T) {
	qt := newTestTree(t)
	b := newBox(1, 480, 480, 40)
	qt.Add(b)
	before := qt.Leaves(b)
	require.Len(t, before, 4)

	// Position equals the old position, so nothing may change even though
	// the call is made every tick.
	qt.Update(b)
	qt.Update(b)

	assert.Equal(t, before, qt.Leaves(b))
	assert.Equal(t, 4, qt.Stats().Memberships)
}

func TestQuadTree_RelocateAcrossLeaves(t *testing.T) {
	qt := newTestTree(t)
	b := newBox(1, 100, 100, 10)
	qt.Add(b)
	require.Equal(t, []physics.Rect{physics.NewRect(0, 0, 500, 500)}, qt.Leaves(b))

	b.moveBy(600, 0)
	qt.Update(b)
	require.NoError(t, qt.CheckConsistency())
	assert.Equal(t, []physics.Rect{physics.NewRect(500, 0, 500, 500)}, qt.Leaves(b))
	assert.Empty(t, qt.ObjectsInArea(physics.NewRect(0, 0, 400, 400)))

	b.moveBy(3000, 3000)
	qt.Update(b)
	require.NoError(t, qt.CheckConsistency())
	assert.Equal(t, []physics.Rect{physics.NewRect(3500, 3000, 500, 500)}, qt.Leaves(b))
}

func TestQuadTree_StaysInLeafWhenContained(t *testing.T) {
	qt := newTestTree(t)
	b := newBox(1, 100, 100, 10)
	qt.Add(b)

	b.moveBy(50, 50)
	qt.Update(b)

	require.NoError(t, qt.CheckConsistency())
	assert.Equal(t, []physics.Rect{physics.NewRect(0, 0, 500, 500)}, qt.Leaves(b))
	assert.Equal(t, 1, qt.Stats().Memberships)
}

func TestQuadTree_OutOfBounds(t *testing.T) {
	qt := newTestTree(t)

	t.Run("add_outside_is_noop", func(t *testing.T) {
		b := newBox(1, -500, -500, 10)
		qt.Add(b)
		assert.False(t, qt.Contains(b))
		assert.Empty(t, qt.CollisionBucket(b))
		assert.Empty(t, qt.Collisions(b, collision.HitboxOverlap))
	})

	t.Run("leaving_and_returning", func(t *testing.T) {
		b := newBox(2, 10, 10, 10)
		qt.Add(b)
		require.True(t, qt.Contains(b))

		b.moveBy(-100, -100)
		qt.Update(b)
		assert.False(t, qt.Contains(b))
		require.NoError(t, qt.CheckConsistency())

		b.moveBy(150, 150)
		qt.Update(b)
		assert.True(t, qt.Contains(b))
		require.NoError(t, qt.CheckConsistency())
	})

	t.Run("partially_outside_is_clipped", func(t *testing.T) {
		b := newBox(3, 3990, 3990, 40)
		qt.Add(b)
		require.NoError(t, qt.CheckConsistency())
		assert.Equal(t, []physics.Rect{physics.NewRect(3500, 3500, 500, 500)}, qt.Leaves(b))
	})

	t.Run("hitbox_larger_than_world", func(t *testing.T) {
		b := newBox(4, 3000, 3000, 10)
		qt.Add(b)
		b.old = b.pos
		b.pos = physics.Vector2D{X: -10, Y: -10}
		b.size = 5000
		qt.Update(b)

		require.NoError(t, qt.CheckConsistency())
		assert.Len(t, qt.Leaves(b), 64)
		qt.Remove(b)
	})
}

func TestQuadTree_VirtualExclusion(t *testing.T) {
	qt := newTestTree(t)
	sensor := newBox(1, 100, 100, 50)
	sensor.virtual = true
	unit := newBox(2, 120, 120, 10)
	qt.Add(sensor)
	qt.Add(unit)

	assert.Empty(t, qt.Collisions(unit, collision.HitboxOverlap), "virtual objects must never be reported")
	assert.Equal(t, []uint64{2}, ids(qt.Collisions(sensor, collision.HitboxOverlap)))
	assert.NotContains(t, ids(qt.ObjectsInArea(qt.Bounds())), uint64(1))
	assert.NotContains(t, ids(qt.CollisionBucket(sensor)), uint64(1))
	for _, bucket := range qt.CollisionBuckets() {
		assert.NotContains(t, ids(bucket), uint64(1))
	}
	require.NoError(t, qt.CheckConsistency())
}

func TestQuadTree_IdentityNotGeometry(t *testing.T) {
	qt := newTestTree(t)
	a := newBox(1, 700, 700, 10)
	b := newBox(2, 700, 700, 10)
	qt.Add(a)
	qt.Add(b)

	assert.Equal(t, []uint64{2}, ids(qt.Collisions(a, collision.CircleOverlap)))
	assert.Equal(t, []uint64{1}, ids(qt.Collisions(b, collision.CircleOverlap)))
}

func TestQuadTree_Remove(t *testing.T) {
	qt := newTestTree(t)
	a := newBox(1, 490, 490, 20)
	b := newBox(2, 495, 495, 2)
	qt.Add(a)
	qt.Add(b)
	require.Len(t, qt.Leaves(a), 4)

	qt.Remove(a)
	require.NoError(t, qt.CheckConsistency())
	assert.False(t, qt.Contains(a))
	assert.Equal(t, 1, qt.Len())
	assert.Empty(t, qt.Collisions(b, collision.HitboxOverlap))

	// Removing twice, or removing something never added, is harmless.
	qt.Remove(a)
	qt.Remove(newBox(99, 0, 0, 1))
	require.NoError(t, qt.CheckConsistency())
}

func TestQuadTree_RemoveAfterStaleHitbox(t *testing.T) {
	qt := newTestTree(t)
	b := newBox(1, 100, 100, 10)
	qt.Add(b)

	// Move without relocating; the full-tree removal still finds it.
	b.pos = physics.Vector2D{X: 3000, Y: 3000}
	qt.Remove(b)
	assert.False(t, qt.Contains(b))
	assert.Equal(t, 0, qt.Stats().Memberships)
}

func TestQuadTree_CollisionBuckets(t *testing.T) {
	qt := newTestTree(t)
	qt.Add(newBox(1, 10, 10, 10))
	qt.Add(newBox(2, 20, 20, 10))
	qt.Add(newBox(3, 995, 100, 10))

	buckets := qt.CollisionBuckets()
	require.Len(t, buckets, 3)
	assert.ElementsMatch(t, []uint64{1, 2}, ids(buckets[0]))

	var straddling int
	for _, bucket := range buckets {
		for _, id := range ids(bucket) {
			if id == 3 {
				straddling++
			}
		}
	}
	assert.Equal(t, 2, straddling)
}

func TestQuadTree_ObjectsInAreaUsesOwnHitbox(t *testing.T) {
	qt := newTestTree(t)
	qt.Add(newBox(1, 10, 10, 10))
	qt.Add(newBox(2, 400, 400, 10))

	found := ids(qt.ObjectsInArea(physics.NewRect(0, 0, 50, 50)))
	assert.Equal(t, []uint64{1}, found)
	assert.Empty(t, qt.ObjectsInArea(physics.NewRect(-100, -100, 10, 10)))
}

func TestQuadTree_ConsistencyDetectsStaleHitbox(t *testing.T) {
	qt := newTestTree(t)
	b := newBox(1, 100, 100, 10)
	qt.Add(b)

	b.pos = physics.Vector2D{X: 3000, Y: 3000}
	err := qt.CheckConsistency()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuadtreeInconsistency))

	var inconsistency *InconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.Equal(t, uint64(1), inconsistency.Object)
}

func TestQuadTree_ConsistencyDetectsBrokenCache(t *testing.T) {
	qt := newTestTree(t)
	b := newBox(1, 100, 100, 10)
	qt.Add(b)

	qt.nodeCache[1] = append(qt.nodeCache[1], qt.leaves[5])
	assert.ErrorIs(t, qt.CheckConsistency(), ErrQuadtreeInconsistency)
}

// TestQuadTree_NoFalseNegatives drives a swarm of boxes around the world and
// checks, every tick, that every pair of intersecting hitboxes finds each
// other and that the structure stays consistent.
func TestQuadTree_NoFalseNegatives(t *testing.T) {
	qt, err := NewQuadTree(1000, 1000, 60)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(7, 11))

	boxes := make([]*box, 0, 120)
	for i := 0; i < 120; i++ {
		b := newBox(uint64(i+1), rng.Float64()*1000, rng.Float64()*1000, 5+rng.Float64()*40)
		b.virtual = i%10 == 0
		boxes = append(boxes, b)
		qt.Add(b)
	}

	for tick := 0; tick < 40; tick++ {
		for _, b := range boxes {
			b.moveBy(rng.Float64()*60-30, rng.Float64()*60-30)
			qt.Update(b)
		}
		require.NoError(t, qt.CheckConsistency(), "tick %d", tick)

		for _, a := range boxes {
			found := make(map[uint64]bool)
			for _, id := range ids(qt.Collisions(a, collision.HitboxOverlap)) {
				found[id] = true
			}
			for _, b := range boxes {
				if a == b || b.virtual {
					continue
				}
				if !qt.Contains(a) || !qt.Contains(b) {
					continue
				}
				if a.Hitbox().Intersects(b.Hitbox()) && !found[b.id] {
					t.Fatalf("tick %d: %d misses %d (%v vs %v)", tick, a.id, b.id, a.Hitbox(), b.Hitbox())
				}
			}
		}
	}
}

func BenchmarkQuadTree_Update(b *testing.B) {
	qt := newTestTree(b)
	rng := rand.New(rand.NewPCG(1, 2))
	boxes := make([]*box, 2000)
	for i := range boxes {
		boxes[i] = newBox(uint64(i+1), rng.Float64()*3900, rng.Float64()*3900, 20)
		qt.Add(boxes[i])
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bx := boxes[i%len(boxes)]
		dx, dy := rng.Float64()*10-5, rng.Float64()*10-5
		bx.moveBy(dx, dy)
		qt.Update(bx)
	}
}

func BenchmarkQuadTree_Collisions(b *testing.B) {
	qt := newTestTree(b)
	rng := rand.New(rand.NewPCG(3, 4))
	boxes := make([]*box, 2000)
	for i := range boxes {
		boxes[i] = newBox(uint64(i+1), rng.Float64()*3900, rng.Float64()*3900, 20)
		qt.Add(boxes[i])
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		qt.Collisions(boxes[i%len(boxes)], collision.CircleOverlap)
	}
}
