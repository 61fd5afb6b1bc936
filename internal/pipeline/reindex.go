package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"contextcache/internal/embedding"
	"contextcache/internal/logging"
	"contextcache/internal/sfc"
	"contextcache/internal/store"
)

const (
	reindexAttempts    = 3
	reindexBaseBackoff = 100 * time.Millisecond
	reindexMaxBackoff  = 5 * time.Second
)

// Reindexer re-embeds memories in the background. The synchronous write path
// stores whatever embedding it could produce (possibly the deterministic
// fallback); the reindexer later replaces it with a fresh provider embedding
// and recomputes the Hilbert index. Re-running a task is harmless: the update
// is idempotent.
type Reindexer struct {
	store   *store.Store
	engine  embedding.Engine
	indexer *sfc.Indexer

	tasks   chan int64
	limiter *rate.Limiter
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewReindexer builds a reindexer with the given queue depth and embed pacing
// (provider calls per second).
func NewReindexer(s *store.Store, engine embedding.Engine, indexer *sfc.Indexer, queueSize int, perSecond float64) *Reindexer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if perSecond <= 0 {
		perSecond = 4
	}
	return &Reindexer{
		store:   s,
		engine:  engine,
		indexer: indexer,
		tasks:   make(chan int64, queueSize),
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Start launches the worker pool. Call Stop to drain and exit.
func (r *Reindexer) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		r.group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id, ok := <-r.tasks:
					if !ok {
						return nil
					}
					r.process(ctx, id)
				}
			}
		})
	}
	logging.Pipeline("reindexer started: workers=%d queue=%d", workers, cap(r.tasks))
}

// Enqueue submits a memory for re-embedding without blocking. A full queue
// drops the task; the stored fallback embedding is already serviceable.
func (r *Reindexer) Enqueue(memoryID int64) {
	select {
	case r.tasks <- memoryID:
	default:
		logging.Get(logging.CategoryPipeline).Warnf("reindex queue full, dropping memory %d", memoryID)
	}
}

// Stop cancels the workers and waits for them to exit.
func (r *Reindexer) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.group != nil {
		_ = r.group.Wait()
	}
}

// process re-embeds one memory with capped exponential backoff. Terminal
// failure is logged and swallowed; the row keeps its previous embedding.
func (r *Reindexer) process(ctx context.Context, memoryID int64) {
	if err := r.limiter.Wait(ctx); err != nil {
		return
	}

	var lastErr error
	backoff := reindexBaseBackoff
	for attempt := 1; attempt <= reindexAttempts; attempt++ {
		if lastErr = r.reindexOnce(ctx, memoryID); lastErr == nil {
			logging.PipelineDebug("reindexed memory %d (attempt %d)", memoryID, attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reindexMaxBackoff {
			backoff = reindexMaxBackoff
		}
	}
	logging.Get(logging.CategoryPipeline).Warnf("reindex of memory %d gave up: %v", memoryID, lastErr)
}

func (r *Reindexer) reindexOnce(ctx context.Context, memoryID int64) error {
	m, err := r.store.GetMemory(ctx, memoryID)
	if err != nil {
		return err
	}

	vec, err := r.engine.Embed(ctx, embeddingText(m.Title, m.Content))
	if err != nil {
		return err
	}

	var hilbert *int64
	if h, ok := r.indexer.Index(vec); ok {
		hilbert = &h
	}
	return r.store.UpdateMemoryEmbedding(ctx, memoryID, vec, hilbert)
}
