// Package sfc maps high-dimensional embedding vectors onto a 1-D Hilbert
// curve. The resulting integer is a coarse spatial bucket: vectors that are
// close in embedding space tend to land in nearby buckets, so a btree range
// scan over the index prefilters candidates for exact cosine ranking.
package sfc

import (
	"math"
	"sync"
)

// =============================================================================
// DETERMINISTIC GAUSSIAN PROJECTION
// =============================================================================

type matrixKey struct {
	inputDim int
	outDim   int
	seed     uint64
}

var (
	matrixMu    sync.RWMutex
	matrixCache = make(map[matrixKey][][]float64)
)

// projectionMatrix returns the cached Gaussian random matrix for the key,
// generating it on first use. Rows are L2-normalized. The same (inputDim,
// outDim, seed) triple always yields the same matrix on every platform, so
// Hilbert indexes computed by different processes agree.
func projectionMatrix(inputDim, outDim int, seed uint64) [][]float64 {
	key := matrixKey{inputDim: inputDim, outDim: outDim, seed: seed}

	matrixMu.RLock()
	if m, ok := matrixCache[key]; ok {
		matrixMu.RUnlock()
		return m
	}
	matrixMu.RUnlock()

	matrixMu.Lock()
	defer matrixMu.Unlock()
	if m, ok := matrixCache[key]; ok {
		return m
	}

	rng := newLCG(seed)
	m := make([][]float64, outDim)
	for r := 0; r < outDim; r++ {
		row := make([]float64, inputDim)
		var mag float64
		for c := 0; c < inputDim; c++ {
			g := rng.gaussian()
			row[c] = g
			mag += g * g
		}
		if mag > 0 {
			inv := 1.0 / math.Sqrt(mag)
			for c := range row {
				row[c] *= inv
			}
		}
		m[r] = row
	}

	matrixCache[key] = m
	return m
}

// project multiplies the cached matrix by vec, yielding outDim values.
func project(vec []float32, outDim int, seed uint64) []float64 {
	m := projectionMatrix(len(vec), outDim, seed)
	out := make([]float64, outDim)
	for r := 0; r < outDim; r++ {
		row := m[r]
		var dot float64
		for c := 0; c < len(vec); c++ {
			dot += row[c] * float64(vec[c])
		}
		out[r] = dot
	}
	return out
}

// =============================================================================
// DETERMINISTIC RNG (LCG + BOX-MULLER)
// =============================================================================

// lcg is Knuth's MMIX linear congruential generator. math/rand is avoided
// here: its stream is not guaranteed stable across Go releases, and a matrix
// drift would silently orphan every stored hilbert_index.
type lcg struct {
	state uint64
}

func newLCG(seed uint64) *lcg {
	return &lcg{state: seed}
}

// uniform returns the next value in [0, 1) with 53 bits of precision.
func (r *lcg) uniform() float64 {
	r.state = r.state*6364136223846793005 + 1442695040888963407
	return float64(r.state>>11) / (1 << 53)
}

// gaussian returns a standard normal sample via Box-Muller.
func (r *lcg) gaussian() float64 {
	u1 := r.uniform()
	for u1 == 0 {
		u1 = r.uniform()
	}
	u2 := r.uniform()
	return math.Sqrt(-2.0*math.Log(u1)) * math.Cos(2.0*math.Pi*u2)
}
