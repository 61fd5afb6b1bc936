package sfc

// =============================================================================
// HILBERT CURVE (SKILLING TRANSPOSE)
// =============================================================================

// hilbertDistance computes the 1-D Hilbert curve distance of an n-dimensional
// integer point on a hypercube with 2^bits cells per side. Skilling's
// transpose algorithm: undo the excess work, Gray encode, then interleave
// the transposed axes into a single integer. Requires n*bits <= 63; the
// caller validates that at config time.
//
// Skilling, "Programming the Hilbert curve", AIP Conf. Proc. 707 (2004).
func hilbertDistance(point []uint32, bits int) uint64 {
	n := len(point)
	x := make([]uint32, n)
	copy(x, point)

	m := uint32(1) << (bits - 1)

	// Inverse undo
	for q := m; q > 1; q >>= 1 {
		p := q - 1
		for i := 0; i < n; i++ {
			if x[i]&q != 0 {
				x[0] ^= p
			} else {
				t := (x[0] ^ x[i]) & p
				x[0] ^= t
				x[i] ^= t
			}
		}
	}

	// Gray encode
	for i := 1; i < n; i++ {
		x[i] ^= x[i-1]
	}
	var t uint32
	for q := m; q > 1; q >>= 1 {
		if x[n-1]&q != 0 {
			t ^= q - 1
		}
	}
	for i := 0; i < n; i++ {
		x[i] ^= t
	}

	// Interleave: bit b of axis i becomes bit (b*n + n-1-i) of the result,
	// most significant first.
	var h uint64
	for b := bits - 1; b >= 0; b-- {
		for i := 0; i < n; i++ {
			h = (h << 1) | uint64((x[i]>>uint(b))&1)
		}
	}
	return h
}
