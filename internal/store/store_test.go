package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextcache/internal/config"
	"contextcache/internal/sfc"
	"contextcache/internal/types"
)

const testDims = 8

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedProject creates org + user + project and returns their IDs.
func seedProject(t *testing.T, s *Store) (orgID, userID, projectID int64) {
	t.Helper()
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	user, err := s.CreateUser(ctx, org.ID, "dev@acme.test", "key-"+t.Name(), false)
	require.NoError(t, err)
	project, err := s.CreateProject(ctx, org.ID, user.ID, "widget")
	require.NoError(t, err)
	return org.ID, user.ID, project.ID
}

func testMemory(projectID, userID int64, content string) *types.Memory {
	return &types.Memory{
		ProjectID:       projectID,
		CreatedByUserID: userID,
		Type:            types.TypeNote,
		Source:          types.SourceAPI,
		Title:           "title of " + content,
		Content:         content,
		ContentHash:     "hash-" + content,
		Embedding:       []float32{1, 0, 0, 0, 0, 0, 0, 0},
	}
}

func TestStore_OpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)
	assert.True(t, tableExists(s.db, "memories"))
	assert.True(t, tableExists(s.db, "usage_counters"))
	assert.True(t, tableExists(s.db, "recall_timings"))
	assert.True(t, columnExists(s.db, "users", "unlimited"))
}

func TestStore_CreateMemoryAndGet(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	hi := int64(12345)
	m := testMemory(projectID, userID, "the first memory")
	m.HilbertIndex = &hi
	m.Metadata = map[string]string{"origin": "test"}

	created, fresh, err := s.CreateMemory(ctx, m)
	require.NoError(t, err)
	require.True(t, fresh)
	require.NotZero(t, created.ID)

	got, err := s.GetMemory(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "the first memory", got.Content)
	assert.Equal(t, m.Embedding, got.Embedding)
	require.NotNil(t, got.HilbertIndex)
	assert.Equal(t, hi, *got.HilbertIndex)
	assert.Equal(t, "test", got.Metadata["origin"])
}

func TestStore_CreateMemoryDedup(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	first, fresh, err := s.CreateMemory(ctx, testMemory(projectID, userID, "dup"))
	require.NoError(t, err)
	require.True(t, fresh)

	second, fresh, err := s.CreateMemory(ctx, testMemory(projectID, userID, "dup"))
	require.NoError(t, err)
	assert.False(t, fresh, "same (project, hash) must collapse")
	assert.Equal(t, first.ID, second.ID)

	// A different project with the same hash is a separate memory.
	org2, err := s.CreateOrganization(ctx, "other")
	require.NoError(t, err)
	p2, err := s.CreateProject(ctx, org2.ID, 0, "other-project")
	require.NoError(t, err)
	third, fresh, err := s.CreateMemory(ctx, testMemory(p2.ID, 0, "dup"))
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestStore_CreateMemoryIncrementsUsage(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	_, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, "a"))
	require.NoError(t, err)
	_, _, err = s.CreateMemory(ctx, testMemory(projectID, userID, "b"))
	require.NoError(t, err)
	// Dedup does not count as a new write.
	_, _, err = s.CreateMemory(ctx, testMemory(projectID, userID, "b"))
	require.NoError(t, err)

	u, err := s.UsageForDay(ctx, userID, types.DayKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.MemoriesCreated)
	assert.Equal(t, int64(1), u.ProjectsCreated, "seedProject counted one project")
}

func TestStore_LexicalCandidates(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	for _, content := range []string{
		"we decided to use postgres for storage",
		"the cache layer uses pheromone decay",
		"unrelated grocery list with apples",
	} {
		_, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, content))
		require.NoError(t, err)
	}

	cands, err := s.LexicalCandidates(ctx, projectID, "postgres storage", 10)
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	top, err := s.GetMemory(ctx, cands[0].ID)
	require.NoError(t, err)
	assert.Contains(t, top.Content, "postgres")

	for _, c := range cands {
		assert.Greater(t, c.Score, 0.0, "bm25 scores are positive after negation")
	}
}

func TestStore_LexicalCandidates_OperatorsQuoted(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	_, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, "query planner and optimizer"))
	require.NoError(t, err)

	// Raw FTS5 operators in user input must not break the query.
	_, err = s.LexicalCandidates(ctx, projectID, `planner AND (optimizer OR "near)`, 10)
	require.NoError(t, err)
}

func TestStore_LexicalCandidates_EmptyQuery(t *testing.T) {
	s := openTestStore(t)
	_, _, projectID := seedProject(t, s)

	cands, err := s.LexicalCandidates(context.Background(), projectID, "  \t ", 10)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestStore_VectorCandidates_FullScan(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	near := testMemory(projectID, userID, "near")
	near.Embedding = []float32{1, 0, 0, 0, 0, 0, 0, 0}
	far := testMemory(projectID, userID, "far")
	far.Embedding = []float32{0, 1, 0, 0, 0, 0, 0, 0}

	nearCreated, _, err := s.CreateMemory(ctx, near)
	require.NoError(t, err)
	_, _, err = s.CreateMemory(ctx, far)
	require.NoError(t, err)

	cands, err := s.VectorCandidates(ctx, projectID,
		[]float32{0.9, 0.1, 0, 0, 0, 0, 0, 0},
		VectorOptions{MinScore: 0.5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, cands, 1, "orthogonal vector filtered by min score")
	assert.Equal(t, nearCreated.ID, cands[0].ID)
}

func TestStore_VectorCandidates_HilbertPrefilter(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	hcfg := config.DefaultHilbertConfig()
	require.NoError(t, hcfg.Validate())
	ix := sfc.NewIndexer(hcfg)

	vecs := [][]float32{
		{1, 0, 0, 0, 0, 0, 0, 0},
		{0.9, 0.1, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 1},
	}
	for i, v := range vecs {
		m := testMemory(projectID, userID, string(rune('a'+i)))
		m.Embedding = v
		if h, ok := ix.Index(v); ok {
			m.HilbertIndex = &h
		}
		_, _, err := s.CreateMemory(ctx, m)
		require.NoError(t, err)
	}

	cands, err := s.VectorCandidates(ctx, projectID, []float32{1, 0, 0, 0, 0, 0, 0, 0},
		VectorOptions{
			Indexer:          ix,
			InitialRadius:    hcfg.InitialRadius,
			RadiusMultiplier: hcfg.RadiusMultiplier,
			MinPoolSize:      hcfg.MinPoolSize,
			MaxRadius:        hcfg.MaxRadius,
			MinScore:         0.0,
			Limit:            10,
		})
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	// Exact cosine order regardless of which windows supplied the pool.
	top, err := s.GetMemory(ctx, cands[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "a", top.Content)
	for i := 1; i < len(cands); i++ {
		assert.LessOrEqual(t, cands[i].Score, cands[i-1].Score)
	}
}

func TestStore_GetMemoriesByIDs_PreservesOrder(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	var ids []int64
	for _, c := range []string{"one", "two", "three"} {
		m, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, c))
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	want := []int64{ids[2], ids[0], ids[1]}
	got, err := s.GetMemoriesByIDs(ctx, append(want, 999999))
	require.NoError(t, err)
	require.Len(t, got, 3, "unknown ids dropped")
	for i, m := range got {
		assert.Equal(t, want[i], m.ID)
	}
}

func TestStore_RecencyFallback(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	for _, c := range []string{"oldest", "middle", "newest"} {
		_, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, c))
		require.NoError(t, err)
	}

	got, err := s.RecencyFallback(ctx, projectID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "newest", got[0].Content)
	assert.Equal(t, "middle", got[1].Content)
}

func TestStore_UpdateMemoryEmbedding(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	m, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, "to reindex"))
	require.NoError(t, err)

	hi := int64(777)
	newVec := []float32{0, 0, 1, 0, 0, 0, 0, 0}
	require.NoError(t, s.UpdateMemoryEmbedding(ctx, m.ID, newVec, &hi))

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, newVec, got.Embedding)
	require.NotNil(t, got.HilbertIndex)
	assert.Equal(t, hi, *got.HilbertIndex)

	err = s.UpdateMemoryEmbedding(ctx, 424242, newVec, nil)
	assert.True(t, types.IsNotFound(err))
}

func TestStore_GetUserByAPIKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	org, err := s.CreateOrganization(ctx, "acme")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, org.ID, "a@b.c", "secret-key", true)
	require.NoError(t, err)

	u, err := s.GetUserByAPIKey(ctx, "secret-key")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)
	assert.True(t, u.Unlimited)

	_, err = s.GetUserByAPIKey(ctx, "wrong")
	var authErr *types.AuthError
	require.ErrorAs(t, err, &authErr)
}
