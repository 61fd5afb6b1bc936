package config

import (
	"os"
	"strconv"
	"time"
)

// applyEnvOverrides layers environment variables over the loaded config.
// Every deployment knob can be set without a YAML file.
func (c *Config) applyEnvOverrides() {
	// Server
	envString("CONTEXTCACHE_ADDR", &c.Server.Addr)
	envString("CONTEXTCACHE_MODE", &c.Server.Mode)

	// Database
	envString("CONTEXTCACHE_DB", &c.Database.Path)

	// Embedding
	envString("EMBEDDING_PROVIDER", &c.Embedding.Provider)
	envString("EMBEDDING_MODEL", &c.Embedding.Model)
	envInt("EMBEDDING_DIMS", &c.Embedding.Dims)
	envString("OPENAI_API_KEY", &c.Embedding.OpenAIAPIKey)
	envString("OPENAI_ENDPOINT", &c.Embedding.OpenAIEndpoint)
	envString("OLLAMA_ENDPOINT", &c.Embedding.OllamaEndpoint)
	envDuration("EMBEDDING_TIMEOUT", &c.Embedding.Timeout)

	// Hilbert prefilter
	envBool("HILBERT_ENABLED", &c.Hilbert.Enabled)
	envInt("HILBERT_DIMS", &c.Hilbert.Dims)
	envInt("HILBERT_BITS", &c.Hilbert.Bits)
	envUint64("HILBERT_SEED", &c.Hilbert.Seed)

	// CAG cache
	envBool("CAG_ENABLED", &c.Cache.Enabled)
	envFloat("CAG_MATCH_THRESHOLD", &c.Cache.MatchThreshold)
	envInt("CAG_CACHE_MAX_ITEMS", &c.Cache.MaxItems)
	envFloat("CAG_PHEROMONE_HIT_BOOST", &c.Cache.HitBoost)
	envFloat("CAG_PHEROMONE_EVAPORATION", &c.Cache.EvaporationRate)
	envDuration("CAG_EVAPORATION_INTERVAL", &c.Cache.EvaporationInterval)

	// Recall
	envDuration("RECALL_HEDGE_DEFAULT", &c.Recall.HedgeDefault)
	envBool("RECALL_TYPE_PRIORS", &c.Recall.TypePriors)

	// Limits
	envInt64("DAILY_MEMORY_LIMIT", &c.Limits.DailyMemoryLimit)
	envInt64("DAILY_RECALL_LIMIT", &c.Limits.DailyRecallLimit)
	envInt64("DAILY_PROJECT_LIMIT", &c.Limits.DailyProjectLimit)
	envInt("RECALL_PER_HOUR", &c.Limits.RecallPerHour)
	envInt("WRITES_PER_MINUTE", &c.Limits.WritesPerMinute)
	envInt("INGEST_PER_MINUTE", &c.Limits.IngestPerMinute)
	envString("RATE_COUNTER_DIR", &c.Limits.CounterDir)
	envBool("RATE_STRICT", &c.Limits.Strict)

	// Logging
	envString("LOG_LEVEL", &c.Logging.Level)
	envBool("LOG_JSON", &c.Logging.JSON)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envUint64(key string, dst *uint64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
