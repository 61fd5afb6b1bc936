package sfc

import (
	"math"

	"contextcache/internal/config"
	"contextcache/internal/logging"
)

// =============================================================================
// INDEXER
// =============================================================================

// Indexer turns embedding vectors into Hilbert curve positions.
type Indexer struct {
	enabled bool
	dims    int
	bits    int
	seed    uint64
}

// NewIndexer builds an indexer from validated configuration.
func NewIndexer(cfg config.HilbertConfig) *Indexer {
	if cfg.Enabled {
		logging.Get(logging.CategorySFC).Infof("hilbert indexer enabled: dims=%d bits=%d seed=%d",
			cfg.Dims, cfg.Bits, cfg.Seed)
	}
	return &Indexer{
		enabled: cfg.Enabled,
		dims:    cfg.Dims,
		bits:    cfg.Bits,
		seed:    cfg.Seed,
	}
}

// Enabled reports whether indexing is on.
func (ix *Indexer) Enabled() bool {
	return ix.enabled
}

// Index computes the Hilbert position for vec. The second return is false
// when indexing is disabled or the vector is empty; callers store NULL then.
func (ix *Indexer) Index(vec []float32) (int64, bool) {
	if !ix.enabled || len(vec) == 0 {
		return 0, false
	}

	projected := project(vec, ix.dims, ix.seed)

	// Quantize each axis: map (v+1)/2 clamped to [0,1] onto [0, 2^bits-1].
	maxCell := float64(uint32(1)<<uint(ix.bits) - 1)
	point := make([]uint32, ix.dims)
	for i, v := range projected {
		u := (v + 1.0) / 2.0
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
		point[i] = uint32(math.Round(u * maxCell))
	}

	return int64(hilbertDistance(point, ix.bits)), true
}

// Window returns the inclusive [lo, hi] Hilbert range of radius around
// center, clamped to the valid curve span.
func (ix *Indexer) Window(center, radius int64) (int64, int64) {
	maxIndex := int64(1)<<uint(ix.dims*ix.bits) - 1

	lo := center - radius
	if lo < 0 {
		lo = 0
	}
	hi := center + radius
	if hi > maxIndex || hi < center {
		hi = maxIndex
	}
	return lo, hi
}
