package recall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"contextcache/internal/cag"
	"contextcache/internal/config"
	"contextcache/internal/embedding"
	"contextcache/internal/logging"
	"contextcache/internal/ranker"
	"contextcache/internal/sfc"
	"contextcache/internal/store"
	"contextcache/internal/types"
)

// Gater is the admission check consulted before any retrieval work.
type Gater interface {
	AllowRecall(ctx context.Context, ip string, user *types.User) error
}

// Request is one recall invocation.
type Request struct {
	OrgID     int64
	ProjectID int64
	Actor     *types.User // nil for unauthenticated internal calls
	Query     string
	Limit     int
	ClientIP  string

	// Strategy optionally forces a serving mode. Only StrategyRecency is
	// honored; anything else selects the default hedged hybrid path.
	Strategy string
}

// Result is the served answer plus everything the caller needs to render it.
type Result struct {
	Strategy   string
	ServedBy   string
	Memories   []types.Memory
	RankedIDs  []int64
	PackText   string
	Trace      ranker.Trace
	HedgeDelay time.Duration
}

// Dispatcher races the CAG cache against the full hybrid pipeline for every
// query and serves whichever answers usefully first.
type Dispatcher struct {
	store   *store.Store
	engine  embedding.Engine
	indexer *sfc.Indexer
	cache   *cag.Cache
	gate    Gater
	hedge   *HedgeEstimator

	cfg  config.RecallConfig
	hcfg config.HilbertConfig

	// hybridHold, when set, blocks the hybrid branch before retrieval
	// starts. Tests use it to make the hedge race deterministic.
	hybridHold func()

	logWG sync.WaitGroup
}

// NewDispatcher wires a dispatcher. cache and gate may be nil to disable the
// corresponding stage.
func NewDispatcher(s *store.Store, engine embedding.Engine, indexer *sfc.Indexer,
	cache *cag.Cache, gate Gater, cfg config.RecallConfig, hcfg config.HilbertConfig) *Dispatcher {
	return &Dispatcher{
		store:   s,
		engine:  engine,
		indexer: indexer,
		cache:   cache,
		gate:    gate,
		hedge:   NewHedgeEstimator(cfg),
		cfg:     cfg,
		hcfg:    hcfg,
	}
}

// Close waits for in-flight background log writes to finish.
func (d *Dispatcher) Close() {
	d.logWG.Wait()
}

type hybridOut struct {
	memories []types.Memory
	ids      []int64
	inputIDs []int64
	trace    ranker.Trace
	err      error
	dur      time.Duration
}

type cacheOut struct {
	chunk cag.Chunk
	hit   bool
	dur   time.Duration
}

// Recall runs one request through gate, hedged execution, formatting, and
// logging.
func (d *Dispatcher) Recall(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	if d.gate != nil {
		if err := d.gate.AllowRecall(ctx, req.ClientIP, req.Actor); err != nil {
			return nil, err
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = d.cfg.DefaultLimit
	}
	if limit > d.cfg.MaxLimit {
		limit = d.cfg.MaxLimit
	}

	query := strings.TrimSpace(req.Query)
	if query == "" || req.Strategy == types.StrategyRecency {
		return d.serveFallback(ctx, req, query, types.StrategyRecency, limit, 0, nil, nil, start)
	}

	qvec, err := d.engine.Embed(ctx, query)
	if err != nil {
		logging.Get(logging.CategoryRecall).Warnf("query embedding failed, serving recency: %v", err)
		return d.serveFallback(ctx, req, query, types.StrategyRecency, limit, 0, nil, nil, start)
	}

	// Launch the hybrid run detached from request cancellation so it can
	// finish for logging even when the cache answers first.
	hybridCh := make(chan hybridOut, 1)
	go d.runHybrid(context.WithoutCancel(ctx), req.ProjectID, query, qvec, limit, hybridCh)

	var cacheCh chan cacheOut
	if d.cache != nil && d.cache.Enabled() {
		cacheCh = make(chan cacheOut, 1)
		go func() {
			t0 := time.Now()
			chunk, hit := d.cache.Probe(qvec)
			cacheCh <- cacheOut{chunk: chunk, hit: hit, dur: time.Since(t0)}
		}()
	}

	hedgeDelay := d.hedge.Delay(req.OrgID)
	timer := time.NewTimer(hedgeDelay)
	defer timer.Stop()

	var late *cacheOut
	var cagDur *int64
	hedgeOpen := true
	for {
		select {
		case h := <-hybridCh:
			d.hedge.Observe(req.OrgID, h.dur)
			ragDur := msPtr(h.dur)

			if h.err == nil && len(h.memories) > 0 {
				return d.serveHybrid(req, query, qvec, limit, hedgeDelay, h, cagDur, start)
			}
			if h.err != nil {
				logging.Get(logging.CategoryRecall).Warnf("hybrid recall failed: %v", h.err)
			}

			// Hybrid came up empty; a cache hit, even a late one, beats the
			// recency fallback.
			if late == nil && cacheCh != nil {
				c := <-cacheCh
				late = &c
			}
			if late != nil {
				cagDur = msPtr(late.dur)
				if late.hit {
					return d.serveCache(ctx, req, query, limit, hedgeDelay,
						late.chunk, types.ServedByRAGThenCAG, cagDur, ragDur, start)
				}
			}

			strategy := types.StrategyRecency
			if cacheCh != nil || late != nil {
				strategy = types.StrategyCacheFallback
			}
			return d.serveFallback(ctx, req, query, strategy, limit, hedgeDelay, cagDur, ragDur, start)

		case c := <-cacheCh:
			cacheCh = nil
			cagDur = msPtr(c.dur)
			if c.hit && hedgeOpen {
				// Serve the cache answer now; drain the hybrid run in the
				// background so its latency still feeds the hedge estimator.
				d.logWG.Add(1)
				go func() {
					defer d.logWG.Done()
					h := <-hybridCh
					if h.err == nil {
						d.hedge.Observe(req.OrgID, h.dur)
					}
				}()
				return d.serveCache(ctx, req, query, limit, hedgeDelay,
					c.chunk, types.ServedByCAG, cagDur, nil, start)
			}
			late = &c

		case <-timer.C:
			hedgeOpen = false
		}
	}
}

// =============================================================================
// HYBRID BRANCH
// =============================================================================

// runHybrid executes lexical and vector retrieval in parallel, fuses the
// channels, and hydrates the ranked memories.
func (d *Dispatcher) runHybrid(ctx context.Context, projectID int64, query string, qvec []float32, limit int, out chan<- hybridOut) {
	t0 := time.Now()
	if d.hybridHold != nil {
		d.hybridHold()
	}

	var lexCands, vecCands []store.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexCands, err = d.store.LexicalCandidates(gctx, projectID, query, d.cfg.CandidateLimit)
		return err
	})
	g.Go(func() error {
		var err error
		vecCands, err = d.store.VectorCandidates(gctx, projectID, qvec, store.VectorOptions{
			Indexer:          d.indexer,
			InitialRadius:    d.hcfg.InitialRadius,
			RadiusMultiplier: d.hcfg.RadiusMultiplier,
			MinPoolSize:      d.hcfg.MinPoolSize,
			MaxRadius:        d.hcfg.MaxRadius,
			MinScore:         d.cfg.MinVectorScore,
			Limit:            d.cfg.CandidateLimit,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		out <- hybridOut{err: err, dur: time.Since(t0)}
		return
	}

	lex := make(map[int64]float64, len(lexCands))
	vec := make(map[int64]float64, len(vecCands))
	created := make(map[int64]time.Time, len(lexCands)+len(vecCands))
	var priors map[int64]types.MemoryType
	if d.cfg.TypePriors {
		priors = make(map[int64]types.MemoryType, len(lexCands)+len(vecCands))
	}

	inputIDs := make([]int64, 0, len(lexCands)+len(vecCands))
	seen := make(map[int64]bool, len(lexCands)+len(vecCands))
	note := func(c store.Candidate) {
		created[c.ID] = c.CreatedAt
		if priors != nil {
			priors[c.ID] = c.Type
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			inputIDs = append(inputIDs, c.ID)
		}
	}
	for _, c := range lexCands {
		lex[c.ID] = c.Score
		note(c)
	}
	for _, c := range vecCands {
		vec[c.ID] = c.Score
		note(c)
	}

	weights := ranker.Weights{FTS: d.cfg.WeightFTS, Vector: d.cfg.WeightVector, Recency: d.cfg.WeightRecency}
	ids, trace := ranker.Rank(lex, vec, created, priors, weights, d.cfg.HalfLifeDays, time.Now(), limit)

	memories, err := d.store.GetMemoriesByIDs(ctx, ids)
	if err != nil {
		out <- hybridOut{err: err, dur: time.Since(t0)}
		return
	}
	out <- hybridOut{
		memories: memories,
		ids:      ids,
		inputIDs: inputIDs,
		trace:    trace,
		dur:      time.Since(t0),
	}
}

// =============================================================================
// SERVING
// =============================================================================

func (d *Dispatcher) serveHybrid(req Request, query string, qvec []float32, limit int,
	hedgeDelay time.Duration, h hybridOut, cagDur *int64, start time.Time) (*Result, error) {

	pack := BuildPack(query, h.memories)

	// Feed the cache so a semantically similar query can skip the pipeline.
	if d.cache != nil && d.cache.Enabled() {
		d.cache.Promote(chunkSource(req.ProjectID, query), pack, qvec, h.ids)
	}

	res := &Result{
		Strategy:   types.StrategyHybrid,
		ServedBy:   types.ServedByRAG,
		Memories:   h.memories,
		RankedIDs:  h.ids,
		PackText:   pack,
		Trace:      h.trace,
		HedgeDelay: hedgeDelay,
	}
	d.logAsync(req, query, res, h.inputIDs, cagDur, msPtr(h.dur), start)
	return res, nil
}

func (d *Dispatcher) serveCache(ctx context.Context, req Request, query string, limit int,
	hedgeDelay time.Duration, chunk cag.Chunk, servedBy string, cagDur, ragDur *int64, start time.Time) (*Result, error) {

	ids := chunk.RankedIDs
	if len(ids) > limit {
		ids = ids[:limit]
	}
	memories, err := d.store.GetMemoriesByIDs(ctx, ids)
	if err != nil {
		logging.Get(logging.CategoryRecall).Warnf("hydrating cached ids failed, serving fallback: %v", err)
		return d.serveFallback(ctx, req, query, types.StrategyCacheFallback, limit, hedgeDelay, cagDur, ragDur, start)
	}

	res := &Result{
		Strategy:   types.StrategyCache,
		ServedBy:   servedBy,
		Memories:   memories,
		RankedIDs:  ids,
		PackText:   chunk.Content,
		HedgeDelay: hedgeDelay,
	}
	d.logAsync(req, query, res, ids, cagDur, ragDur, start)
	return res, nil
}

func (d *Dispatcher) serveFallback(ctx context.Context, req Request, query, strategy string, limit int,
	hedgeDelay time.Duration, cagDur, ragDur *int64, start time.Time) (*Result, error) {

	memories, err := d.store.RecencyFallback(ctx, req.ProjectID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}

	res := &Result{
		Strategy:   strategy,
		ServedBy:   types.ServedByRAG,
		Memories:   memories,
		RankedIDs:  ids,
		PackText:   BuildPack(query, memories),
		HedgeDelay: hedgeDelay,
	}
	d.logAsync(req, query, res, ids, cagDur, ragDur, start)
	return res, nil
}

// =============================================================================
// LOGGING
// =============================================================================

// logAsync records the decision, timing, and usage without blocking the
// response. Failures are logged and dropped.
func (d *Dispatcher) logAsync(req Request, query string, res *Result, inputIDs []int64, cagDur, ragDur *int64, start time.Time) {
	totalMS := time.Since(start).Milliseconds()

	var actorID *int64
	if req.Actor != nil {
		id := req.Actor.ID
		actorID = &id
	}

	details := make(map[int64]types.ScoreTrace, len(res.Trace))
	for id, s := range res.Trace {
		details[id] = types.ScoreTrace{
			FTS: s.FTS, Vector: s.Vector, Recency: s.Recency, Prior: s.Prior, Total: s.Total,
		}
	}

	log := &types.RecallLog{
		OrgID:           req.OrgID,
		ProjectID:       req.ProjectID,
		ActorUserID:     actorID,
		Strategy:        res.Strategy,
		QueryText:       query,
		InputMemoryIDs:  inputIDs,
		RankedMemoryIDs: res.RankedIDs,
		Weights:         types.RecallWeights{FTS: d.cfg.WeightFTS, Vector: d.cfg.WeightVector, Recency: d.cfg.WeightRecency},
		ScoreDetails:    details,
	}
	timing := &types.RecallTiming{
		OrgID:           req.OrgID,
		ProjectID:       req.ProjectID,
		ActorUserID:     actorID,
		ServedBy:        res.ServedBy,
		Strategy:        res.Strategy,
		HedgeDelayMS:    res.HedgeDelay.Milliseconds(),
		CAGDurationMS:   cagDur,
		RAGDurationMS:   ragDur,
		TotalDurationMS: totalMS,
	}

	d.logWG.Add(1)
	go func() {
		defer d.logWG.Done()
		ctx := context.Background()
		if err := d.store.InsertRecallLog(ctx, log); err != nil {
			logging.Get(logging.CategoryRecall).Warnf("recall log write failed: %v", err)
		}
		if err := d.store.InsertRecallTiming(ctx, timing); err != nil {
			logging.Get(logging.CategoryRecall).Warnf("recall timing write failed: %v", err)
		}
		if req.Actor != nil {
			if err := d.store.IncrementUsage(ctx, req.Actor.ID, types.UsageRecallQueries); err != nil {
				logging.Get(logging.CategoryRecall).Warnf("usage increment failed: %v", err)
			}
		}
	}()
}

// chunkSource keys a cached answer by project and query digest.
func chunkSource(projectID int64, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("recall:%d:%s", projectID, hex.EncodeToString(sum[:6]))
}

func msPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
