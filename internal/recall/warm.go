package recall

import (
	"context"
	"fmt"
	"sort"

	"contextcache/internal/cag"
	"contextcache/internal/logging"
	"contextcache/internal/store"
)

// WarmProject preloads the cache with a project's most recent memories,
// highest type priority first, so early queries after a restart can hit.
// Returns the number of chunks added.
func WarmProject(ctx context.Context, s *store.Store, cache *cag.Cache, projectID int64, count int) (int, error) {
	if cache == nil || !cache.Enabled() {
		return 0, nil
	}
	if count <= 0 {
		count = 100
	}

	memories, err := s.ListMemories(ctx, projectID, count, 0)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].Type.Priority() > memories[j].Type.Priority()
	})

	chunks := make([]cag.Chunk, 0, len(memories))
	for _, m := range memories {
		if len(m.Embedding) == 0 {
			continue
		}
		chunks = append(chunks, cag.Chunk{
			Source:    fmt.Sprintf("memory:%d", m.ID),
			Content:   m.Content,
			Embedding: m.Embedding,
			RankedIDs: []int64{m.ID},
			CreatedAt: m.CreatedAt,
		})
	}

	added := cache.Warm(chunks)
	logging.Recall("cache warmed for project %d: %d chunks", projectID, added)
	return added, nil
}
