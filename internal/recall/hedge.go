// Package recall orchestrates one recall request end to end: gate, hedged
// cache-versus-hybrid execution, pack rendering, and decision logging.
package recall

import (
	"sort"
	"sync"
	"time"

	"contextcache/internal/config"
)

// hedgeSamples is the per-org ring size for recent hybrid latencies.
const hedgeSamples = 32

// HedgeEstimator adapts the hedge delay per org: the p95 of that org's
// recent hybrid latencies, clamped to the configured bounds. Orgs with no
// history get the configured default.
type HedgeEstimator struct {
	mu    sync.Mutex
	rings map[int64]*latencyRing

	def time.Duration
	min time.Duration
	max time.Duration
}

type latencyRing struct {
	samples [hedgeSamples]time.Duration
	n       int // total observations, capped writes wrap around
}

// NewHedgeEstimator builds an estimator from recall config.
func NewHedgeEstimator(cfg config.RecallConfig) *HedgeEstimator {
	return &HedgeEstimator{
		rings: make(map[int64]*latencyRing),
		def:   cfg.HedgeDefault,
		min:   cfg.HedgeMin,
		max:   cfg.HedgeMax,
	}
}

// Observe records one completed hybrid run for the org.
func (h *HedgeEstimator) Observe(orgID int64, d time.Duration) {
	if d < 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings[orgID]
	if !ok {
		r = &latencyRing{}
		h.rings[orgID] = r
	}
	r.samples[r.n%hedgeSamples] = d
	r.n++
}

// Delay returns the hedge delay to use for the org's next request.
func (h *HedgeEstimator) Delay(orgID int64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rings[orgID]
	if !ok || r.n == 0 {
		return h.def
	}

	count := r.n
	if count > hedgeSamples {
		count = hedgeSamples
	}
	sorted := make([]time.Duration, count)
	copy(sorted, r.samples[:count])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (count*95 + 99) / 100
	if idx > 0 {
		idx--
	}
	p95 := sorted[idx]

	if p95 < h.min {
		return h.min
	}
	if p95 > h.max {
		return h.max
	}
	return p95
}
