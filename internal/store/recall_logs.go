package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contextcache/internal/types"
)

// Recall decision records are append-only. ID lists and the score trace are
// stored as JSON text columns; they are read for debugging and offline
// analysis, never joined against.

// InsertRecallLog appends one ranking decision record.
func (s *Store) InsertRecallLog(ctx context.Context, log *types.RecallLog) error {
	inputIDs, err := json.Marshal(log.InputMemoryIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal input ids: %w", err)
	}
	rankedIDs, err := json.Marshal(log.RankedMemoryIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal ranked ids: %w", err)
	}
	weights, err := json.Marshal(log.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	details, err := json.Marshal(log.ScoreDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal score details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recall_logs
			(org_id, project_id, actor_user_id, strategy, query_text,
			 input_memory_ids, ranked_memory_ids, weights, score_details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.OrgID, log.ProjectID, log.ActorUserID, log.Strategy, log.QueryText,
		string(inputIDs), string(rankedIDs), string(weights), string(details),
		time.Now().UTC())
	if err != nil {
		return unavailable("insert_recall_log", err)
	}
	return nil
}

// InsertRecallTiming appends one hedging outcome record.
func (s *Store) InsertRecallTiming(ctx context.Context, t *types.RecallTiming) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recall_timings
			(org_id, project_id, actor_user_id, served_by, strategy,
			 hedge_delay_ms, cag_duration_ms, rag_duration_ms, total_duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.OrgID, t.ProjectID, t.ActorUserID, t.ServedBy, t.Strategy,
		t.HedgeDelayMS, t.CAGDurationMS, t.RAGDurationMS, t.TotalDurationMS,
		time.Now().UTC())
	if err != nil {
		return unavailable("insert_recall_timing", err)
	}
	return nil
}

// RecentRecallTimings returns the newest timing rows for a project, used by
// the stats CLI.
func (s *Store) RecentRecallTimings(ctx context.Context, projectID int64, limit int) ([]types.RecallTiming, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, project_id, actor_user_id, served_by, strategy,
		       hedge_delay_ms, cag_duration_ms, rag_duration_ms, total_duration_ms, created_at
		FROM recall_timings WHERE project_id = ?
		ORDER BY id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, unavailable("recent_recall_timings", err)
	}
	defer rows.Close()

	var out []types.RecallTiming
	for rows.Next() {
		var t types.RecallTiming
		if err := rows.Scan(&t.ID, &t.OrgID, &t.ProjectID, &t.ActorUserID,
			&t.ServedBy, &t.Strategy, &t.HedgeDelayMS, &t.CAGDurationMS,
			&t.RAGDurationMS, &t.TotalDurationMS, &t.CreatedAt); err != nil {
			return nil, unavailable("recent_recall_timings", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
