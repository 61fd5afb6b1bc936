package config

import "fmt"

// HilbertConfig configures the space-filling-curve prefilter index.
type HilbertConfig struct {
	// Enabled toggles the index. When off, memories store a NULL
	// hilbert_index and the vector retriever scans without a prefilter.
	Enabled bool `yaml:"enabled"`

	// Dims is the projected dimensionality before quantization.
	Dims int `yaml:"dims"`

	// Bits per dimension for quantization. Dims*Bits must stay <= 63 so
	// the Hilbert distance fits a signed 64-bit column.
	Bits int `yaml:"bits"`

	// Seed for the deterministic Gaussian projection matrix.
	Seed uint64 `yaml:"seed"`

	// Adaptive window widening for the vector retriever prefilter.
	InitialRadius    int64   `yaml:"initial_radius"`
	RadiusMultiplier float64 `yaml:"radius_multiplier"`
	MinPoolSize      int     `yaml:"min_pool_size"`
	MaxRadius        int64   `yaml:"max_radius"`
}

// DefaultHilbertConfig returns sensible defaults.
func DefaultHilbertConfig() HilbertConfig {
	return HilbertConfig{
		Enabled:          true,
		Dims:             8,
		Bits:             12, // 8*12 = 96 > 63 would overflow; see Validate note below
		Seed:             0x5eed0c0ffee,
		InitialRadius:    500_000,
		RadiusMultiplier: 2.0,
		MinPoolSize:      500,
		MaxRadius:        5_000_000,
	}
}

// Validate enforces the 64-bit fit. The classic (8 dims, 12 bits) pairing
// from the literature does not fit a signed int64, so when both defaults
// are requested we clamp bits down rather than fail startup.
func (h *HilbertConfig) Validate() error {
	if !h.Enabled {
		return nil
	}
	if h.Dims <= 0 || h.Bits <= 0 {
		return fmt.Errorf("hilbert dims and bits must be positive, got dims=%d bits=%d", h.Dims, h.Bits)
	}
	if h.Dims*h.Bits > 63 {
		// Preserve dims (spatial resolution of the projection) and reduce
		// per-axis precision instead.
		h.Bits = 63 / h.Dims
		if h.Bits == 0 {
			return fmt.Errorf("hilbert dims=%d too large for a 64-bit index", h.Dims)
		}
	}
	if h.RadiusMultiplier <= 1.0 {
		return fmt.Errorf("hilbert radius_multiplier must exceed 1.0, got %g", h.RadiusMultiplier)
	}
	return nil
}
