package config

import (
	"fmt"
	"time"
)

// CacheConfig configures the CAG (cache-augmented generation) layer.
type CacheConfig struct {
	// Enabled toggles the cache probe in the recall dispatcher.
	Enabled bool `yaml:"enabled"`

	// MatchThreshold is the minimum cosine similarity for a cache hit.
	MatchThreshold float64 `yaml:"match_threshold"`

	// MaxItems bounds the chunk count; inserts past the cap evict the
	// lowest-pheromone chunks.
	MaxItems int `yaml:"max_items"`

	// HitBoost multiplies a hit chunk's pheromone level by (1 + HitBoost).
	HitBoost float64 `yaml:"hit_boost"`

	// EvaporationRate multiplies every pheromone level by
	// (1 - EvaporationRate) each evaporation pass.
	EvaporationRate float64 `yaml:"evaporation_rate"`

	// EvaporationInterval is the minimum time between passes.
	EvaporationInterval time.Duration `yaml:"evaporation_interval"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:             true,
		MatchThreshold:      0.82,
		MaxItems:            10_000,
		HitBoost:            0.4,
		EvaporationRate:     0.5,
		EvaporationInterval: 300 * time.Second,
	}
}

// Validate checks the pheromone parameters are in range.
func (c *CacheConfig) Validate() error {
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("cache match_threshold must be in [0,1], got %g", c.MatchThreshold)
	}
	if c.EvaporationRate < 0 || c.EvaporationRate > 1 {
		return fmt.Errorf("cache evaporation_rate must be in [0,1], got %g", c.EvaporationRate)
	}
	if c.HitBoost < 0 {
		return fmt.Errorf("cache hit_boost must be non-negative, got %g", c.HitBoost)
	}
	if c.MaxItems <= 0 {
		return fmt.Errorf("cache max_items must be positive, got %d", c.MaxItems)
	}
	return nil
}
