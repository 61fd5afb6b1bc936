// Package embedding provides vector embedding generation for semantic recall.
// Supports multiple backends: OpenAI (cloud), Ollama (local server), and a
// deterministic in-process fallback that needs no network at all.
package embedding

import (
	"context"
	"fmt"
	"math"

	"contextcache/internal/config"
	"contextcache/internal/logging"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// =============================================================================
// FACTORY
// =============================================================================

// NewEngine creates an embedding engine from configuration. Remote providers
// are wrapped in a fallback engine so an outage degrades to deterministic
// local vectors instead of failing writes and recalls.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	logging.Embedding("Creating embedding engine with provider=%s model=%s dims=%d",
		cfg.Provider, cfg.Model, cfg.Dims)

	local := NewLocalEngine(cfg.Model, cfg.Dims)

	switch cfg.Provider {
	case "local", "":
		return local, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logging.Get(logging.CategoryEmbedding).Warn("openai provider selected without API key, using local fallback only")
			return local, nil
		}
		remote := NewOpenAIEngine(cfg.OpenAIEndpoint, cfg.OpenAIAPIKey, cfg.Model, cfg.Dims, cfg.Timeout)
		return NewFallbackEngine(remote, local), nil
	case "ollama":
		remote := NewOllamaEngine(cfg.OllamaEndpoint, cfg.Model, cfg.Dims, cfg.Timeout)
		return NewFallbackEngine(remote, local), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'openai', 'ollama', or 'local')", cfg.Provider)
	}
}

// =============================================================================
// VECTOR UTILITIES
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1. Mismatched lengths or zero-magnitude
// vectors score 0; recall treats those memories as non-matches rather than
// failing the query.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}

	if aMag == 0 || bMag == 0 {
		return 0
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
}

// Normalize scales vec to unit L2 norm in place. A zero vector stays zero.
func Normalize(vec []float32) {
	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(mag)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}

// FitDimensions truncates or zero-pads vec to exactly dims entries. Backends
// with a different native dimensionality are coerced so every stored vector
// is directly comparable.
func FitDimensions(vec []float32, dims int) []float32 {
	if len(vec) == dims {
		return vec
	}
	if len(vec) > dims {
		return vec[:dims]
	}
	out := make([]float32, dims)
	copy(out, vec)
	return out
}
