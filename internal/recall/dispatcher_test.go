package recall

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"contextcache/internal/cag"
	"contextcache/internal/config"
	"contextcache/internal/embedding"
	"contextcache/internal/sfc"
	"contextcache/internal/store"
	"contextcache/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testDims = 8

type fixture struct {
	store      *store.Store
	engine     embedding.Engine
	dispatcher *Dispatcher
	cache      *cag.Cache
	orgID      int64
	userID     int64
	projectID  int64
}

func newFixture(t *testing.T, gater Gater) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, org.ID, "dev@acme.test", "key-"+t.Name(), false)
	require.NoError(t, err)
	project, err := s.CreateProject(ctx, org.ID, user.ID, "widget")
	require.NoError(t, err)

	hcfg := config.DefaultHilbertConfig()
	require.NoError(t, hcfg.Validate())
	engine := embedding.NewLocalEngine("test-model", testDims)
	cache := cag.New(config.DefaultCacheConfig())

	d := NewDispatcher(s, engine, sfc.NewIndexer(hcfg), cache, gater,
		config.DefaultRecallConfig(), hcfg)
	t.Cleanup(d.Close)

	return &fixture{
		store:      s,
		engine:     engine,
		dispatcher: d,
		cache:      cache,
		orgID:      org.ID,
		userID:     user.ID,
		projectID:  project.ID,
	}
}

func (f *fixture) addMemory(t *testing.T, mtype types.MemoryType, content string) *types.Memory {
	t.Helper()
	ctx := context.Background()
	vec, err := f.engine.Embed(ctx, content)
	require.NoError(t, err)

	m, _, err := f.store.CreateMemory(ctx, &types.Memory{
		ProjectID:       f.projectID,
		CreatedByUserID: f.userID,
		Type:            mtype,
		Source:          types.SourceAPI,
		Content:         content,
		ContentHash:     "hash-" + content,
		Embedding:       vec,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) request(query string) Request {
	return Request{
		OrgID:     f.orgID,
		ProjectID: f.projectID,
		Actor:     &types.User{ID: f.userID, OrgID: f.orgID},
		Query:     query,
		ClientIP:  "10.0.0.1",
	}
}

func TestDispatcher_HybridServesRankedResults(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeDecision, "we decided to use sqlite for persistence")
	f.addMemory(t, types.TypeNote, "lunch options near the office")

	res, err := f.dispatcher.Recall(context.Background(), f.request("sqlite persistence"))
	require.NoError(t, err)

	assert.Equal(t, types.StrategyHybrid, res.Strategy)
	assert.Equal(t, types.ServedByRAG, res.ServedBy)
	require.NotEmpty(t, res.Memories)
	assert.Equal(t, "we decided to use sqlite for persistence", res.Memories[0].Content)
	assert.Contains(t, res.PackText, "DECISION:")
	assert.Contains(t, res.PackText, "Query: sqlite persistence")
	assert.NotEmpty(t, res.Trace, "every candidate carries a score trace")
	for _, id := range res.RankedIDs {
		assert.Contains(t, res.Trace, id)
	}
}

func TestDispatcher_LogsDecisionAndUsage(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeNote, "observable recall behavior")
	ctx := context.Background()

	_, err := f.dispatcher.Recall(ctx, f.request("recall behavior"))
	require.NoError(t, err)
	f.dispatcher.Close() // flush async log writes

	timings, err := f.store.RecentRecallTimings(ctx, f.projectID, 10)
	require.NoError(t, err)
	require.Len(t, timings, 1)
	assert.Equal(t, types.ServedByRAG, timings[0].ServedBy)
	assert.Equal(t, types.StrategyHybrid, timings[0].Strategy)
	require.NotNil(t, timings[0].RAGDurationMS)

	usage, err := f.store.UsageForDay(ctx, f.userID, types.DayKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.RecallQueries)
}

func TestDispatcher_EmptyQueryUsesRecency(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeNote, "older entry")
	f.addMemory(t, types.TypeNote, "newer entry")

	res, err := f.dispatcher.Recall(context.Background(), f.request("   "))
	require.NoError(t, err)

	assert.Equal(t, types.StrategyRecency, res.Strategy)
	require.Len(t, res.Memories, 2)
	assert.Equal(t, "newer entry", res.Memories[0].Content)
}

func TestDispatcher_StrategyOverrideRecency(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeNote, "older")
	f.addMemory(t, types.TypeNote, "newer")

	req := f.request("older")
	req.Strategy = types.StrategyRecency
	res, err := f.dispatcher.Recall(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, types.StrategyRecency, res.Strategy)
	require.Len(t, res.Memories, 2)
	assert.Equal(t, "newer", res.Memories[0].Content, "override ignores relevance")
}

func TestDispatcher_RepeatQueryHitsCache(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeDecision, "badger holds the rate counters")

	ctx := context.Background()
	first, err := f.dispatcher.Recall(ctx, f.request("rate counters"))
	require.NoError(t, err)
	require.Equal(t, types.StrategyHybrid, first.Strategy)

	// The identical query embeds identically, so the promoted chunk matches
	// with cosine 1.0 and answers inside the hedge window.
	second, err := f.dispatcher.Recall(ctx, f.request("rate counters"))
	require.NoError(t, err)
	assert.Equal(t, types.StrategyCache, second.Strategy)
	assert.Equal(t, types.ServedByCAG, second.ServedBy)
	assert.Equal(t, first.PackText, second.PackText)
	assert.Equal(t, first.RankedIDs, second.RankedIDs)

	stats := f.cache.Stats()
	assert.Equal(t, int64(1), stats.TotalHits)
}

func TestDispatcher_CacheAnswersWhileHybridStalls(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeDecision, "hedged answers come from the cache")
	ctx := context.Background()

	// First pass runs the full pipeline and promotes the answer.
	first, err := f.dispatcher.Recall(ctx, f.request("hedged answers"))
	require.NoError(t, err)
	require.Equal(t, types.StrategyHybrid, first.Strategy)

	// Block the hybrid branch so only the cache can answer.
	release := make(chan struct{})
	f.dispatcher.hybridHold = func() { <-release }

	start := time.Now()
	res, err := f.dispatcher.Recall(ctx, f.request("hedged answers"))
	elapsed := time.Since(start)
	require.NoError(t, err)

	// ServedByCAG is only possible inside the hedge window; the hybrid run
	// is still parked on the hold, so the response raced ahead of it.
	assert.Equal(t, types.StrategyCache, res.Strategy)
	assert.Equal(t, types.ServedByCAG, res.ServedBy)
	assert.Equal(t, first.RankedIDs, res.RankedIDs)
	assert.Less(t, elapsed, time.Second)

	close(release)
	f.dispatcher.Close() // drains the stalled run and flushes the log writes

	timings, err := f.store.RecentRecallTimings(ctx, f.projectID, 10)
	require.NoError(t, err)
	require.Len(t, timings, 2)
	latest := timings[0]
	assert.Equal(t, types.ServedByCAG, latest.ServedBy)
	require.NotNil(t, latest.CAGDurationMS)
	assert.Nil(t, latest.RAGDurationMS, "hybrid had not finished when the answer went out")
}

func TestDispatcher_EmptyProjectFallsBack(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.dispatcher.Recall(context.Background(), f.request("anything at all"))
	require.NoError(t, err)

	// Cache is enabled but missed, hybrid found nothing.
	assert.Equal(t, types.StrategyCacheFallback, res.Strategy)
	assert.Empty(t, res.Memories)
}

type refuseGate struct{ err error }

func (g *refuseGate) AllowRecall(context.Context, string, *types.User) error { return g.err }

func TestDispatcher_GateRefusalShortCircuits(t *testing.T) {
	refusal := &types.GateRefusedError{Reason: "slow down", RetryAfter: time.Minute}
	f := newFixture(t, &refuseGate{err: refusal})
	f.addMemory(t, types.TypeNote, "should never be reached")

	_, err := f.dispatcher.Recall(context.Background(), f.request("anything"))
	var refused *types.GateRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, "slow down", refused.Reason)
}

func TestDispatcher_LimitClamped(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 15; i++ {
		f.addMemory(t, types.TypeNote, "entry number "+string(rune('a'+i)))
	}

	req := f.request("entry number")
	req.Limit = 1000
	res, err := f.dispatcher.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Memories), config.DefaultRecallConfig().MaxLimit)

	req.Limit = 3
	res, err = f.dispatcher.Recall(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(res.Memories), 3)
}

func TestWarmProject(t *testing.T) {
	f := newFixture(t, nil)
	f.addMemory(t, types.TypeDecision, "warmed decision")
	f.addMemory(t, types.TypeNote, "warmed note")

	added, err := WarmProject(context.Background(), f.store, f.cache, f.projectID, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 2, f.cache.Stats().CacheItems)

	// Warming again does not duplicate.
	added, err = WarmProject(context.Background(), f.store, f.cache, f.projectID, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}
