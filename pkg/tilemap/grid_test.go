package tilemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-rts/pkg/physics"
)

func TestParseLayout(t *testing.T) {
	g, err := ParseLayout([]string{
		"....",
		".##.",
		"....",
	}, 10)
	require.NoError(t, err)

	cols, rows := g.Dimensions()
	assert.Equal(t, 4, cols)
	assert.Equal(t, 3, rows)
	assert.Equal(t, 40.0, g.Width())
	assert.Equal(t, 30.0, g.Height())
	assert.True(t, g.Blocked(1, 1))
	assert.False(t, g.Blocked(0, 0))
	assert.Len(t, g.BlockedTiles(), 2)
	assert.Equal(t, "....\n.##.\n....\n", g.String())
	assert.Equal(t, []string{"....", ".##.", "...."}, g.Rows())
}

func TestParseLayout_Invalid(t *testing.T) {
	tests := map[string][]string{
		"empty":   nil,
		"ragged":  {"...", ".."},
		"unknown": {"..x"},
	}
	for name, layout := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseLayout(layout, 10)
			assert.ErrorIs(t, err, ErrInvalidLayout)
		})
	}
}

func TestGrid_IsBlocking(t *testing.T) {
	g := NewGrid(100, 100, 10)
	g.Block(physics.NewRect(50, 50, 10, 10))

	tests := []struct {
		name     string
		area     physics.Rect
		expected bool
	}{
		{"open_ground", physics.NewRect(5, 5, 10, 10), false},
		{"on_blocked_tile", physics.NewRect(52, 52, 2, 2), true},
		{"overlapping_blocked_tile", physics.NewRect(45, 45, 10, 10), true},
		{"flush_against_blocked_tile", physics.NewRect(40, 50, 10, 10), false},
		{"leaving_map", physics.NewRect(95, 10, 10, 10), true},
		{"negative_coordinates", physics.NewRect(-1, 10, 5, 5), true},
		{"empty_area", physics.NewRect(52, 52, -1, -1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, g.IsBlocking(tt.area))
		})
	}
}

func TestGrid_OffGridTilesAreBlocked(t *testing.T) {
	g := NewGrid(20, 20, 10)
	assert.True(t, g.Blocked(-1, 0))
	assert.True(t, g.Blocked(0, 2))
	g.SetBlocked(5, 5, true) // ignored
	assert.Empty(t, g.BlockedTiles())
}
