package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextcache/internal/config"
)

func TestFallbackEngine_UsesLocalOnRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	local := NewLocalEngine("test-model", 32)
	remote := NewOllamaEngine(srv.URL, "test-model", 32, time.Second)
	e := NewFallbackEngine(remote, local)

	got, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)

	want, err := local.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, want, got, "fallback must serve the deterministic local vector")
}

func TestFallbackEngine_RemoteSuccessFittedAndNormalized(t *testing.T) {
	// Remote answers with a 4-dim non-unit vector; engine is configured
	// for 6 dims, so the result is padded then normalized.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{3, 4, 0, 0}})
	}))
	defer srv.Close()

	local := NewLocalEngine("test-model", 6)
	remote := NewOllamaEngine(srv.URL, "test-model", 6, time.Second)
	e := NewFallbackEngine(remote, local)

	vec, err := e.Embed(context.Background(), "anything")
	require.NoError(t, err)
	require.Len(t, vec, 6)

	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(mag), 1e-6)
}

func TestFallbackEngine_BatchFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	local := NewLocalEngine("test-model", 16)
	remote := NewOllamaEngine(srv.URL, "test-model", 16, time.Second)
	e := NewFallbackEngine(remote, local)

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestOpenAIEngine_BatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		// Respond out of order; index must win.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0, 1}},
				{"index": 0, "embedding": []float32{1, 0}},
			},
		})
	}))
	defer srv.Close()

	e := NewOpenAIEngine(srv.URL, "sk-test", "text-embedding-3-small", 2, time.Second)
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestNewEngine_UnknownProvider(t *testing.T) {
	cfg := config.DefaultEmbeddingConfig()
	cfg.Provider = "carrier-pigeon"
	_, err := NewEngine(cfg)
	require.Error(t, err)
}
