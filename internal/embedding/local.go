package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// =============================================================================
// LOCAL DETERMINISTIC ENGINE
// =============================================================================

// LocalEngine produces deterministic pseudo-embeddings from a hash chain over
// the input text. The vectors carry no semantic signal, but they are stable
// across processes and platforms, so dedup, the Hilbert index, and the cache
// keep working when no real embedding backend is reachable.
type LocalEngine struct {
	model string
	dims  int
}

// NewLocalEngine creates a deterministic local engine. The model name is
// folded into the hash seed so switching models invalidates old vectors.
func NewLocalEngine(model string, dims int) *LocalEngine {
	return &LocalEngine{model: model, dims: dims}
}

// Embed derives a unit vector from sha256 over the seeded text. Empty or
// whitespace-only text maps to the zero vector, which cosine-scores 0
// against everything.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	if strings.TrimSpace(text) == "" {
		return vec, nil
	}

	// Hash chain: each round hashes the previous digest, yielding 16
	// big-endian uint16 words per round until dims values are filled.
	digest := sha256.Sum256([]byte("fallback:" + e.model + ":" + text))
	i := 0
	for i < e.dims {
		for w := 0; w < len(digest)/2 && i < e.dims; w++ {
			word := binary.BigEndian.Uint16(digest[w*2 : w*2+2])
			vec[i] = float32(float64(word)/32767.5 - 1.0)
			i++
		}
		digest = sha256.Sum256(digest[:])
	}

	Normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *LocalEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *LocalEngine) Name() string {
	return fmt.Sprintf("local:%s", e.model)
}
