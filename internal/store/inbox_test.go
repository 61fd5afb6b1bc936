package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contextcache/internal/types"
)

func TestStore_InboxLifecycle(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	capture, err := s.CreateRawCapture(ctx, projectID, "chatgpt", "raw conversation text")
	require.NoError(t, err)
	assert.Equal(t, "queued", capture.Status)

	item, err := s.CreateInboxItem(ctx, &types.InboxItem{
		ProjectID:        projectID,
		RawCaptureID:     &capture.ID,
		SuggestedType:    types.TypeNote,
		SuggestedTitle:   "raw conversation",
		SuggestedContent: "refined content",
		ConfidenceScore:  0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, types.InboxPending, item.Status)

	pending, err := s.ListInbox(ctx, projectID, types.InboxPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	mem, _, err := s.CreateMemory(ctx, testMemory(projectID, userID, "promoted"))
	require.NoError(t, err)
	require.NoError(t, s.ResolveInboxItem(ctx, item.ID, types.InboxApproved, &mem.ID, userID))

	got, err := s.GetInboxItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, types.InboxApproved, got.Status)
	require.NotNil(t, got.PromotedMemoryID)
	assert.Equal(t, mem.ID, *got.PromotedMemoryID)

	pending, err = s.ListInbox(ctx, projectID, types.InboxPending, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_ResolveInboxItem_AlreadyResolved(t *testing.T) {
	s := openTestStore(t)
	_, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	item, err := s.CreateInboxItem(ctx, &types.InboxItem{
		ProjectID:        projectID,
		SuggestedType:    types.TypeNote,
		SuggestedContent: "draft",
	})
	require.NoError(t, err)

	require.NoError(t, s.ResolveInboxItem(ctx, item.ID, types.InboxRejected, nil, userID))

	err = s.ResolveInboxItem(ctx, item.ID, types.InboxApproved, nil, userID)
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve, "second resolution must fail")

	err = s.ResolveInboxItem(ctx, 999999, types.InboxApproved, nil, userID)
	assert.True(t, types.IsNotFound(err))
}

func TestStore_RecallLogsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	orgID, userID, projectID := seedProject(t, s)
	ctx := context.Background()

	err := s.InsertRecallLog(ctx, &types.RecallLog{
		OrgID:           orgID,
		ProjectID:       projectID,
		ActorUserID:     &userID,
		Strategy:        types.StrategyHybrid,
		QueryText:       "how do we store vectors",
		InputMemoryIDs:  []int64{1, 2, 3},
		RankedMemoryIDs: []int64{2, 1},
		Weights:         types.RecallWeights{FTS: 0.45, Vector: 0.40, Recency: 0.15},
		ScoreDetails: map[int64]types.ScoreTrace{
			2: {FTS: 1, Vector: 0.5, Recency: 0.9, Total: 0.785},
		},
	})
	require.NoError(t, err)

	err = s.InsertRecallTiming(ctx, &types.RecallTiming{
		OrgID:           orgID,
		ProjectID:       projectID,
		ActorUserID:     &userID,
		ServedBy:        types.ServedByRAG,
		Strategy:        types.StrategyHybrid,
		HedgeDelayMS:    250,
		TotalDurationMS: 12,
	})
	require.NoError(t, err)

	timings, err := s.RecentRecallTimings(ctx, projectID, 10)
	require.NoError(t, err)
	require.Len(t, timings, 1)
	assert.Equal(t, types.ServedByRAG, timings[0].ServedBy)
	assert.Equal(t, int64(250), timings[0].HedgeDelayMS)
	assert.Nil(t, timings[0].CAGDurationMS)
}
