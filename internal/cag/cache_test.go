package cag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"contextcache/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	cfg := config.DefaultCacheConfig()
	require.NoError(t, cfg.Validate())
	return New(cfg)
}

// fixed clock helper: advance manually
type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCache_ProbeHitAndMiss(t *testing.T) {
	c := testCache(t)
	c.Promote("src-1", "cached answer", []float32{1, 0, 0}, []int64{7, 8})

	// Identical direction: similarity 1.0 >= 0.82.
	hit, ok := c.Probe([]float32{2, 0, 0})
	require.True(t, ok)
	assert.Equal(t, "cached answer", hit.Content)
	assert.Equal(t, []int64{7, 8}, hit.RankedIDs)
	assert.Equal(t, int64(1), hit.HitCount)

	// Orthogonal: similarity 0 < 0.82.
	_, ok = c.Probe([]float32{0, 1, 0})
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.TotalHits)
	assert.Equal(t, int64(1), stats.TotalMisses)
}

func TestCache_HitBoostsPheromone(t *testing.T) {
	c := testCache(t)
	c.Promote("src-1", "answer", []float32{1, 0}, nil)

	first, ok := c.Probe([]float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.4, first.PheromoneLevel, 1e-9)

	second, ok := c.Probe([]float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.96, second.PheromoneLevel, 1e-9)
	assert.Equal(t, int64(2), second.HitCount)
}

func TestCache_PromoteDuplicateSourceUpdates(t *testing.T) {
	c := testCache(t)
	c.Promote("src-1", "old content", []float32{1, 0}, []int64{1})
	c.Promote("src-1", "new content", []float32{1, 0}, []int64{2})

	assert.Equal(t, 1, c.Stats().CacheItems)

	hit, ok := c.Probe([]float32{1, 0})
	require.True(t, ok)
	assert.Equal(t, "new content", hit.Content)
	assert.Equal(t, []int64{2}, hit.RankedIDs)
}

func TestCache_Evaporation(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.EvaporationInterval = time.Minute
	c := New(cfg)

	clock := newFakeClock()
	c.now = clock.now

	c.Promote("src-1", "answer", []float32{1, 0}, nil)

	// First probe establishes the evaporation baseline.
	_, ok := c.Probe([]float32{1, 0})
	require.True(t, ok)

	// Under the interval: no decay beyond the hit boost.
	clock.advance(30 * time.Second)
	hit, ok := c.Probe([]float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.96, hit.PheromoneLevel, 1e-9)

	// Past the interval: levels halve (rate 0.5) before the probe boost.
	clock.advance(2 * time.Minute)
	hit, ok = c.Probe([]float32{1, 0})
	require.True(t, ok)
	assert.InDelta(t, 1.96*0.5*1.4, hit.PheromoneLevel, 1e-9)
	assert.False(t, c.Stats().LastEvaporationAt.IsZero())
}

func TestCache_EvictionDropsLowestPheromone(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.MaxItems = 2
	c := New(cfg)

	c.Promote("cold", "a", []float32{1, 0, 0}, nil)
	c.Promote("hot", "b", []float32{0, 1, 0}, nil)

	// Reinforce "hot" so "cold" is the eviction candidate.
	_, ok := c.Probe([]float32{0, 1, 0})
	require.True(t, ok)

	c.Promote("new", "c", []float32{0, 0, 1}, nil)

	stats := c.Stats()
	assert.Equal(t, 2, stats.CacheItems)
	assert.Equal(t, int64(1), stats.TotalEvicted)

	_, ok = c.Probe([]float32{1, 0, 0})
	assert.False(t, ok, "cold chunk must be gone")
	_, ok = c.Probe([]float32{0, 1, 0})
	assert.True(t, ok)
}

func TestCache_EvictionTieBreaksLRU(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.MaxItems = 2
	c := New(cfg)

	clock := newFakeClock()
	c.now = clock.now

	c.Promote("older", "a", []float32{1, 0, 0}, nil)
	clock.advance(time.Second)
	c.Promote("newer", "b", []float32{0, 1, 0}, nil)
	clock.advance(time.Second)
	c.Promote("third", "c", []float32{0, 0, 1}, nil)

	_, ok := c.Probe([]float32{1, 0, 0})
	assert.False(t, ok, "equal pheromone evicts the least recently accessed")
	_, ok = c.Probe([]float32{0, 1, 0})
	assert.True(t, ok)
}

func TestCache_WarmRespectsCap(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.MaxItems = 3
	c := New(cfg)

	chunks := []Chunk{
		{Source: "a", Content: "1", Embedding: []float32{1, 0}},
		{Source: "b", Content: "2", Embedding: []float32{0, 1}},
		{Source: "c", Content: "3", Embedding: []float32{1, 1}},
		{Source: "d", Content: "4", Embedding: []float32{1, 2}},
	}
	added := c.Warm(chunks)

	assert.Equal(t, 3, added)
	stats := c.Stats()
	assert.Equal(t, 3, stats.CacheItems)
	assert.False(t, stats.WarmedAt.IsZero())
}

func TestCache_StatsTopEntries(t *testing.T) {
	c := testCache(t)
	c.Promote("quiet", "a", []float32{1, 0}, nil)
	c.Promote("busy", "b", []float32{0, 1}, nil)

	for i := 0; i < 3; i++ {
		_, ok := c.Probe([]float32{0, 1})
		require.True(t, ok)
	}

	stats := c.Stats()
	require.NotEmpty(t, stats.TopEntries)
	assert.Equal(t, "busy", stats.TopEntries[0].Source)
	assert.Equal(t, int64(3), stats.TopEntries[0].HitCount)
}

func TestCache_StartEvaporationStopsOnCancel(t *testing.T) {
	cfg := config.DefaultCacheConfig()
	cfg.EvaporationInterval = 10 * time.Millisecond
	c := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.StartEvaporation(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("evaporation goroutine did not stop")
	}
}
