package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"contextcache/internal/types"
)

// Usage counters live in one row per (user, UTC day). Counters reset
// implicitly when the day key rolls over; old rows stay for reporting.

var usageFields = map[string]bool{
	types.UsageMemoriesCreated: true,
	types.UsageRecallQueries:   true,
	types.UsageProjectsCreated: true,
}

// incrementUsageTx bumps one counter inside an existing transaction, so the
// increment commits or rolls back with the operation it counts.
func incrementUsageTx(ctx context.Context, tx *sql.Tx, userID int64, field string, now time.Time) error {
	if !usageFields[field] {
		return fmt.Errorf("unknown usage field %q", field)
	}
	day := types.DayKey(now)
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, day, %s) VALUES (?, ?, 1)
		ON CONFLICT (user_id, day) DO UPDATE SET %s = %s + 1`,
		field, field, field), userID, day)
	return err
}

// IncrementUsage bumps one counter outside a transaction (recall queries).
func (s *Store) IncrementUsage(ctx context.Context, userID int64, field string) error {
	if !usageFields[field] {
		return fmt.Errorf("unknown usage field %q", field)
	}
	day := types.DayKey(time.Now())
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO usage_counters (user_id, day, %s) VALUES (?, ?, 1)
		ON CONFLICT (user_id, day) DO UPDATE SET %s = %s + 1`,
		field, field, field), userID, day)
	if err != nil {
		return unavailable("increment_usage", err)
	}
	return nil
}

// UsageForDay reads a user's counters for the given UTC day key. A missing
// row means zero usage, not an error.
func (s *Store) UsageForDay(ctx context.Context, userID int64, day string) (*types.UsageCounters, error) {
	u := &types.UsageCounters{UserID: userID, Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT memories_created, recall_queries, projects_created
		FROM usage_counters WHERE user_id = ? AND day = ?`, userID, day).
		Scan(&u.MemoriesCreated, &u.RecallQueries, &u.ProjectsCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return nil, unavailable("usage_for_day", err)
	}
	return u, nil
}
