package embedding

import (
	"context"
	"fmt"

	"contextcache/internal/logging"
)

// =============================================================================
// FALLBACK ENGINE
// =============================================================================

// FallbackEngine wraps a remote engine with a deterministic local backup.
// Any remote failure (network, auth, timeout, malformed response) degrades
// to the local engine instead of propagating; writes and recalls never fail
// because an embedding provider is down. All returned vectors are fitted to
// the local engine's dimensionality and L2-normalized.
type FallbackEngine struct {
	remote Engine
	local  *LocalEngine
}

// NewFallbackEngine wraps remote with local as the degradation path.
func NewFallbackEngine(remote Engine, local *LocalEngine) *FallbackEngine {
	return &FallbackEngine{remote: remote, local: local}
}

// Embed tries the remote engine first and falls back to local vectors on
// any error.
func (e *FallbackEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.remote.Embed(ctx, text)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warnf("remote embedding failed, using local fallback: %v", err)
		vec, err = e.local.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
	}
	vec = FitDimensions(vec, e.local.Dimensions())
	Normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text, falling back per batch on remote failure.
func (e *FallbackEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.remote.EmbedBatch(ctx, texts)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warnf("remote batch embedding failed, using local fallback: %v", err)
		vecs, err = e.local.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("engine returned %d embeddings for %d inputs", len(vecs), len(texts))
	}
	for i := range vecs {
		vecs[i] = FitDimensions(vecs[i], e.local.Dimensions())
		Normalize(vecs[i])
	}
	return vecs, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *FallbackEngine) Dimensions() int {
	return e.local.Dimensions()
}

// Name reports the remote engine's name; the fallback is an implementation
// detail of availability, not identity.
func (e *FallbackEngine) Name() string {
	return e.remote.Name()
}
