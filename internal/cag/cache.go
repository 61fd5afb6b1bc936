// Package cag implements an in-process cache of recall answers keyed by
// semantic similarity. Chunks carry a pheromone level: hits reinforce it
// multiplicatively, periodic evaporation decays it, and eviction removes the
// least-reinforced entries first. Frequently re-asked queries stay hot,
// stale ones fade out on their own.
package cag

import (
	"context"
	"sort"
	"sync"
	"time"

	"contextcache/internal/config"
	"contextcache/internal/embedding"
	"contextcache/internal/logging"
)

// =============================================================================
// CHUNK
// =============================================================================

// Chunk is one cached recall answer.
type Chunk struct {
	// Source is the membership key, opaque to the cache.
	Source string `json:"source"`

	// Content is the rendered memory pack text served on a hit.
	Content string `json:"content"`

	// Embedding of the query that produced this answer.
	Embedding []float32 `json:"-"`

	// RankedIDs are the memory IDs behind the answer, so a hit can still
	// return structured items.
	RankedIDs []int64 `json:"ranked_ids,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	PheromoneLevel float64   `json:"pheromone_level"`
	HitCount       int64     `json:"hit_count"`
}

// Stats is a point-in-time snapshot of cache health.
type Stats struct {
	CacheItems        int        `json:"cache_items"`
	WarmedAt          time.Time  `json:"warmed_at"`
	LastEvaporationAt time.Time  `json:"last_evaporation_at"`
	TotalQueries      int64      `json:"total_queries"`
	TotalHits         int64      `json:"total_hits"`
	TotalMisses       int64      `json:"total_misses"`
	TotalEvicted      int64      `json:"total_evicted"`
	TopEntries        []TopEntry `json:"top_entries"`
}

// TopEntry is one high-pheromone chunk in the stats sample.
type TopEntry struct {
	Source         string  `json:"source"`
	PheromoneLevel float64 `json:"pheromone_level"`
	HitCount       int64   `json:"hit_count"`
}

// =============================================================================
// CACHE
// =============================================================================

// Cache holds chunks behind a single mutex. Operations are short scans over
// a bounded list, so one lock keeps the invariants simple: counters, levels,
// and membership always move together.
type Cache struct {
	mu     sync.Mutex
	cfg    config.CacheConfig
	chunks map[string]*Chunk

	totalQueries int64
	totalHits    int64
	totalMisses  int64
	totalEvicted int64

	warmedAt        time.Time
	lastEvaporation time.Time

	now func() time.Time
}

// New creates an empty cache.
func New(cfg config.CacheConfig) *Cache {
	return &Cache{
		cfg:    cfg,
		chunks: make(map[string]*Chunk),
		now:    time.Now,
	}
}

// Enabled reports whether the dispatcher should probe this cache.
func (c *Cache) Enabled() bool {
	return c.cfg.Enabled
}

// Probe scans for the chunk most similar to queryEmbedding. A hit (top
// similarity >= match_threshold) reinforces the chunk and returns a copy;
// a miss returns false. Probes also trigger overdue evaporation.
func (c *Cache) Probe(queryEmbedding []float32) (Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evaporateIfDueLocked()
	c.totalQueries++

	var best *Chunk
	bestSim := -1.0
	for _, ch := range c.chunks {
		sim := embedding.CosineSimilarity(queryEmbedding, ch.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = ch
		}
	}

	if best == nil || bestSim < c.cfg.MatchThreshold {
		c.totalMisses++
		return Chunk{}, false
	}

	best.PheromoneLevel *= 1.0 + c.cfg.HitBoost
	best.HitCount++
	best.LastAccessedAt = c.now()
	c.totalHits++

	logging.CacheDebug("cache hit: source=%s similarity=%.4f pheromone=%.3f",
		best.Source, bestSim, best.PheromoneLevel)
	return *best, true
}

// Promote inserts a chunk, or refreshes the existing entry when the source
// is already cached. New chunks start at pheromone level 1.0.
func (c *Cache) Promote(source, content string, queryEmbedding []float32, rankedIDs []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.chunks[source]; ok {
		existing.Content = content
		existing.Embedding = queryEmbedding
		existing.RankedIDs = rankedIDs
		existing.LastAccessedAt = now
		return
	}

	c.chunks[source] = &Chunk{
		Source:         source,
		Content:        content,
		Embedding:      queryEmbedding,
		RankedIDs:      rankedIDs,
		CreatedAt:      now,
		LastAccessedAt: now,
		PheromoneLevel: 1.0,
	}
	c.evictLocked()
}

// Warm loads an initial chunk population, stopping at the size cap.
func (c *Cache) Warm(chunks []Chunk) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	added := 0
	now := c.now()
	for i := range chunks {
		if len(c.chunks) >= c.cfg.MaxItems {
			break
		}
		ch := chunks[i]
		if _, ok := c.chunks[ch.Source]; ok {
			continue
		}
		if ch.PheromoneLevel == 0 {
			ch.PheromoneLevel = 1.0
		}
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		if ch.LastAccessedAt.IsZero() {
			ch.LastAccessedAt = now
		}
		c.chunks[ch.Source] = &ch
		added++
	}
	c.warmedAt = now

	logging.Cache("cache warmed: added=%d items=%d", added, len(c.chunks))
	return added
}

// Stats returns a snapshot including the five highest-pheromone chunks.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	top := make([]TopEntry, 0, len(c.chunks))
	for _, ch := range c.chunks {
		top = append(top, TopEntry{
			Source:         ch.Source,
			PheromoneLevel: ch.PheromoneLevel,
			HitCount:       ch.HitCount,
		})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].PheromoneLevel != top[j].PheromoneLevel {
			return top[i].PheromoneLevel > top[j].PheromoneLevel
		}
		return top[i].Source < top[j].Source
	})
	if len(top) > 5 {
		top = top[:5]
	}

	return Stats{
		CacheItems:        len(c.chunks),
		WarmedAt:          c.warmedAt,
		LastEvaporationAt: c.lastEvaporation,
		TotalQueries:      c.totalQueries,
		TotalHits:         c.totalHits,
		TotalMisses:       c.totalMisses,
		TotalEvicted:      c.totalEvicted,
		TopEntries:        top,
	}
}

// StartEvaporation runs a background ticker that decays pheromone levels
// even when no probes arrive. Returns when ctx is done.
func (c *Cache) StartEvaporation(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.EvaporationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.evaporateIfDueLocked()
			c.mu.Unlock()
		}
	}
}

// =============================================================================
// INTERNALS (lock held)
// =============================================================================

// evaporateIfDueLocked decays every pheromone level by (1 - evaporation_rate)
// when the interval has elapsed. Cooperative: probes call this too, so decay
// happens even without the background ticker.
func (c *Cache) evaporateIfDueLocked() {
	now := c.now()
	if c.lastEvaporation.IsZero() {
		c.lastEvaporation = now
		return
	}
	if now.Sub(c.lastEvaporation) < c.cfg.EvaporationInterval {
		return
	}

	factor := 1.0 - c.cfg.EvaporationRate
	for _, ch := range c.chunks {
		ch.PheromoneLevel *= factor
	}
	c.lastEvaporation = now
	logging.CacheDebug("pheromone evaporation applied: factor=%.2f items=%d", factor, len(c.chunks))
}

// evictLocked drops lowest-pheromone chunks until the cache fits the cap.
// Pheromone ties break toward the oldest last access.
func (c *Cache) evictLocked() {
	if len(c.chunks) <= c.cfg.MaxItems {
		return
	}

	all := make([]*Chunk, 0, len(c.chunks))
	for _, ch := range c.chunks {
		all = append(all, ch)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].PheromoneLevel != all[j].PheromoneLevel {
			return all[i].PheromoneLevel < all[j].PheromoneLevel
		}
		return all[i].LastAccessedAt.Before(all[j].LastAccessedAt)
	})

	excess := len(c.chunks) - c.cfg.MaxItems
	for _, ch := range all[:excess] {
		delete(c.chunks, ch.Source)
		c.totalEvicted++
	}
	logging.CacheDebug("evicted %d chunks, items=%d", excess, len(c.chunks))
}
