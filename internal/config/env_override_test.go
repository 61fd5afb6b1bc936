package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_Embedding(t *testing.T) {
	t.Run("EMBEDDING_PROVIDER overrides provider", func(t *testing.T) {
		t.Setenv("EMBEDDING_PROVIDER", "openai")
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "openai", cfg.Embedding.Provider)
		assert.Equal(t, "sk-test", cfg.Embedding.OpenAIAPIKey)
	})

	t.Run("EMBEDDING_DIMS parses integer", func(t *testing.T) {
		t.Setenv("EMBEDDING_DIMS", "768")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 768, cfg.Embedding.Dims)
	})

	t.Run("invalid integer leaves default", func(t *testing.T) {
		t.Setenv("EMBEDDING_DIMS", "not-a-number")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 1536, cfg.Embedding.Dims)
	})
}

func TestEnvOverrides_Hilbert(t *testing.T) {
	t.Setenv("HILBERT_ENABLED", "false")
	t.Setenv("HILBERT_DIMS", "4")
	t.Setenv("HILBERT_SEED", "12345")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.False(t, cfg.Hilbert.Enabled)
	assert.Equal(t, 4, cfg.Hilbert.Dims)
	assert.Equal(t, uint64(12345), cfg.Hilbert.Seed)
}

func TestEnvOverrides_Cache(t *testing.T) {
	t.Setenv("CAG_ENABLED", "true")
	t.Setenv("CAG_MATCH_THRESHOLD", "0.9")
	t.Setenv("CAG_CACHE_MAX_ITEMS", "5000")
	t.Setenv("CAG_PHEROMONE_HIT_BOOST", "0.25")
	t.Setenv("CAG_PHEROMONE_EVAPORATION", "0.3")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 0.9, cfg.Cache.MatchThreshold)
	assert.Equal(t, 5000, cfg.Cache.MaxItems)
	assert.Equal(t, 0.25, cfg.Cache.HitBoost)
	assert.Equal(t, 0.3, cfg.Cache.EvaporationRate)
}

func TestEnvOverrides_Limits(t *testing.T) {
	t.Setenv("DAILY_MEMORY_LIMIT", "100")
	t.Setenv("DAILY_RECALL_LIMIT", "200")
	t.Setenv("DAILY_PROJECT_LIMIT", "5")
	t.Setenv("RATE_COUNTER_DIR", "/var/lib/contextcache/counters")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, int64(100), cfg.Limits.DailyMemoryLimit)
	assert.Equal(t, int64(200), cfg.Limits.DailyRecallLimit)
	assert.Equal(t, int64(5), cfg.Limits.DailyProjectLimit)
	assert.Equal(t, "/var/lib/contextcache/counters", cfg.Limits.CounterDir)
}

func TestEnvOverrides_HedgeDuration(t *testing.T) {
	t.Setenv("RECALL_HEDGE_DEFAULT", "100ms")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "100ms", cfg.Recall.HedgeDefault.String())
}
