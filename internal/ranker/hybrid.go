// Package ranker fuses lexical, vector, and recency signals into one ranked
// list. Scores are normalized per channel, weighted, summed, and every
// component is recorded in a trace so a recall result can be explained after
// the fact.
package ranker

import (
	"math"
	"sort"
	"time"

	"contextcache/internal/types"
)

// =============================================================================
// SCORE TYPES
// =============================================================================

// Weights are the fusion coefficients for one ranking pass.
type Weights struct {
	FTS     float64 `json:"fts"`
	Vector  float64 `json:"vector"`
	Recency float64 `json:"recency"`
}

// Score is the full per-memory breakdown of one ranking pass.
type Score struct {
	FTS     float64 `json:"fts"`
	Vector  float64 `json:"vector"`
	Recency float64 `json:"recency"`
	Prior   float64 `json:"prior"`
	Total   float64 `json:"total"`
}

// Trace maps memory ID to its score breakdown for every candidate that
// entered the pass, ranked or not.
type Trace map[int64]Score

// =============================================================================
// CHANNEL NORMALIZATION
// =============================================================================

// Normalize rescales a channel's raw scores to [0, 1] by dividing by the
// maximum positive score. When no score is positive the whole channel
// flattens to zero rather than inverting the ordering.
func Normalize(raw map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(raw))

	var max float64
	for _, s := range raw {
		if s > max {
			max = s
		}
	}
	if max <= 0 {
		for id := range raw {
			out[id] = 0
		}
		return out
	}

	for id, s := range raw {
		if s < 0 {
			s = 0
		}
		out[id] = s / max
	}
	return out
}

// Recency scores age with exponential half-life decay: a memory exactly
// halfLifeDays old scores 0.5, brand new scores 1.0. Future timestamps
// clamp to 1.0.
func Recency(createdAt, now time.Time, halfLifeDays float64) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24.0
	if ageDays <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// =============================================================================
// FUSION
// =============================================================================

// maximum additive boost for the highest-priority memory type
const priorScale = 0.05

// Rank fuses the lexical and vector candidate channels into a single ordered
// list of at most limit memory IDs. created supplies each candidate's
// creation time for the recency channel. typePriors may be nil to disable
// the additive type boost; the trace records a zero prior then. Ordering is
// total score descending, then memory ID descending (newer wins ties).
func Rank(
	lexical, vector map[int64]float64,
	created map[int64]time.Time,
	typePriors map[int64]types.MemoryType,
	w Weights,
	halfLifeDays float64,
	now time.Time,
	limit int,
) ([]int64, Trace) {
	lexNorm := Normalize(lexical)
	vecNorm := Normalize(vector)

	// Union of both channels.
	ids := make(map[int64]struct{}, len(lexNorm)+len(vecNorm))
	for id := range lexNorm {
		ids[id] = struct{}{}
	}
	for id := range vecNorm {
		ids[id] = struct{}{}
	}

	trace := make(Trace, len(ids))
	ranked := make([]int64, 0, len(ids))
	for id := range ids {
		s := Score{
			FTS:    lexNorm[id],
			Vector: vecNorm[id],
		}
		if at, ok := created[id]; ok {
			s.Recency = Recency(at, now, halfLifeDays)
		}
		if typePriors != nil {
			if mt, ok := typePriors[id]; ok {
				s.Prior = float64(mt.Priority()) / 10.0 * priorScale
			}
		}
		s.Total = w.FTS*s.FTS + w.Vector*s.Vector + w.Recency*s.Recency + s.Prior
		trace[id] = s
		ranked = append(ranked, id)
	}

	sort.Slice(ranked, func(i, j int) bool {
		ti, tj := trace[ranked[i]].Total, trace[ranked[j]].Total
		if ti != tj {
			return ti > tj
		}
		return ranked[i] > ranked[j]
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, trace
}
