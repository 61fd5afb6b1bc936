package config

import (
	"fmt"
	"time"
)

// RecallConfig configures the hybrid ranker and the recall dispatcher.
type RecallConfig struct {
	// Fusion weights. Non-negative; they do not need to sum to 1.
	WeightFTS     float64 `yaml:"weight_fts"`
	WeightVector  float64 `yaml:"weight_vector"`
	WeightRecency float64 `yaml:"weight_recency"`

	// HalfLifeDays is the recency decay half-life.
	HalfLifeDays float64 `yaml:"half_life_days"`

	// TypePriors enables the additive per-type boost in the ranker.
	TypePriors bool `yaml:"type_priors"`

	// CandidateLimit bounds each retriever's candidate set.
	CandidateLimit int `yaml:"candidate_limit"`

	// MinVectorScore excludes weak cosine matches from the vector channel.
	MinVectorScore float64 `yaml:"min_vector_score"`

	// Result limits for the recall endpoint.
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`

	// Hedging. HedgeDefault applies when an org has no recorded hybrid
	// latency history; the adaptive p95 is clamped to [HedgeMin, HedgeMax].
	HedgeDefault time.Duration `yaml:"hedge_default"`
	HedgeMin     time.Duration `yaml:"hedge_min"`
	HedgeMax     time.Duration `yaml:"hedge_max"`
}

// DefaultRecallConfig returns sensible defaults.
func DefaultRecallConfig() RecallConfig {
	return RecallConfig{
		WeightFTS:      0.45,
		WeightVector:   0.40,
		WeightRecency:  0.15,
		HalfLifeDays:   14,
		TypePriors:     false,
		CandidateLimit: 50,
		MinVectorScore: 0.0,
		DefaultLimit:   10,
		MaxLimit:       50,
		HedgeDefault:   250 * time.Millisecond,
		HedgeMin:       50 * time.Millisecond,
		HedgeMax:       2 * time.Second,
	}
}

// Validate checks weight and limit sanity.
func (r *RecallConfig) Validate() error {
	if r.WeightFTS < 0 || r.WeightVector < 0 || r.WeightRecency < 0 {
		return fmt.Errorf("recall weights must be non-negative, got fts=%g vector=%g recency=%g",
			r.WeightFTS, r.WeightVector, r.WeightRecency)
	}
	if r.HalfLifeDays <= 0 {
		return fmt.Errorf("recall half_life_days must be positive, got %g", r.HalfLifeDays)
	}
	if r.DefaultLimit <= 0 || r.MaxLimit < r.DefaultLimit {
		return fmt.Errorf("recall limits invalid: default=%d max=%d", r.DefaultLimit, r.MaxLimit)
	}
	if r.HedgeMin > r.HedgeMax {
		return fmt.Errorf("recall hedge_min %s exceeds hedge_max %s", r.HedgeMin, r.HedgeMax)
	}
	return nil
}
