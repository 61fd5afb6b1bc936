package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEngine_Deterministic(t *testing.T) {
	e := NewLocalEngine("test-model", 64)

	a, err := e.Embed(context.Background(), "the same input text")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the same input text")
	require.NoError(t, err)

	assert.Equal(t, a, b, "same text must produce identical vectors")
}

func TestLocalEngine_DistinctTexts(t *testing.T) {
	e := NewLocalEngine("test-model", 64)

	a, err := e.Embed(context.Background(), "first text")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "second text")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestLocalEngine_ModelChangesVectors(t *testing.T) {
	a, err := NewLocalEngine("model-a", 32).Embed(context.Background(), "text")
	require.NoError(t, err)
	b, err := NewLocalEngine("model-b", 32).Embed(context.Background(), "text")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "model name must seed the hash")
}

func TestLocalEngine_UnitNorm(t *testing.T) {
	e := NewLocalEngine("test-model", 128)

	vec, err := e.Embed(context.Background(), "some content to embed")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(mag), 1e-5)
}

func TestLocalEngine_EmptyTextIsZeroVector(t *testing.T) {
	e := NewLocalEngine("test-model", 16)

	for _, text := range []string{"", "   ", "\n\t "} {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, vec, 16)
		for i, v := range vec {
			assert.Zero(t, v, "index %d for %q", i, text)
		}
	}
}

func TestLocalEngine_DimsLargerThanOneDigest(t *testing.T) {
	// 16 words per sha256 digest; 100 dims forces the hash chain to extend.
	e := NewLocalEngine("test-model", 100)

	vec, err := e.Embed(context.Background(), "needs more than one digest")
	require.NoError(t, err)
	require.Len(t, vec, 100)

	// The chained portion must not be all zeros.
	var tail float64
	for _, v := range vec[16:] {
		tail += math.Abs(float64(v))
	}
	assert.Greater(t, tail, 0.0)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-3, 0}), 1e-9)

	// Mismatched lengths and zero vectors score 0, never error.
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestFitDimensions(t *testing.T) {
	vec := []float32{1, 2, 3}

	same := FitDimensions(vec, 3)
	assert.Equal(t, vec, same)

	shorter := FitDimensions(vec, 2)
	assert.Equal(t, []float32{1, 2}, shorter)

	longer := FitDimensions(vec, 5)
	assert.Equal(t, []float32{1, 2, 3, 0, 0}, longer)
}
