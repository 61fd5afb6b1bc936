package sfc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHilbertDistance_FirstOrder2D(t *testing.T) {
	// The 2x2 Hilbert curve visits (0,0), (0,1), (1,1), (1,0).
	assert.Equal(t, uint64(0), hilbertDistance([]uint32{0, 0}, 1))
	assert.Equal(t, uint64(1), hilbertDistance([]uint32{0, 1}, 1))
	assert.Equal(t, uint64(2), hilbertDistance([]uint32{1, 1}, 1))
	assert.Equal(t, uint64(3), hilbertDistance([]uint32{1, 0}, 1))
}

func TestHilbertDistance_Bijective(t *testing.T) {
	// Every cell of an 8x8 grid maps to a distinct distance in [0, 64).
	const bits = 3
	seen := make(map[uint64][2]uint32)
	for x := uint32(0); x < 8; x++ {
		for y := uint32(0); y < 8; y++ {
			d := hilbertDistance([]uint32{x, y}, bits)
			require.Less(t, d, uint64(64))
			prev, dup := seen[d]
			require.False(t, dup, "distance %d hit by both %v and (%d,%d)", d, prev, x, y)
			seen[d] = [2]uint32{x, y}
		}
	}
	assert.Len(t, seen, 64)
}

func TestHilbertDistance_Locality(t *testing.T) {
	// Consecutive curve positions are grid neighbors (Manhattan distance 1).
	const bits = 4
	byDistance := make(map[uint64][2]uint32)
	for x := uint32(0); x < 16; x++ {
		for y := uint32(0); y < 16; y++ {
			byDistance[hilbertDistance([]uint32{x, y}, bits)] = [2]uint32{x, y}
		}
	}

	manhattan := func(a, b [2]uint32) int {
		d := 0
		for i := 0; i < 2; i++ {
			if a[i] > b[i] {
				d += int(a[i] - b[i])
			} else {
				d += int(b[i] - a[i])
			}
		}
		return d
	}

	for d := uint64(0); d < 255; d++ {
		assert.Equal(t, 1, manhattan(byDistance[d], byDistance[d+1]),
			"positions %d and %d must be adjacent", d, d+1)
	}
}

func TestHilbertDistance_ThreeDimensions(t *testing.T) {
	// 3-D, 2 bits per axis: 64 distinct cells, still bijective.
	seen := make(map[uint64]bool)
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			for z := uint32(0); z < 4; z++ {
				d := hilbertDistance([]uint32{x, y, z}, 2)
				require.Less(t, d, uint64(64))
				require.False(t, seen[d])
				seen[d] = true
			}
		}
	}
}
