package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"contextcache/internal/types"
)

// =============================================================================
// RAW CAPTURES
// =============================================================================

// CreateRawCapture queues an unprocessed payload for the refinery.
func (s *Store) CreateRawCapture(ctx context.Context, projectID int64, source, payload string) (*types.RawCapture, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_captures (project_id, source, payload, status, created_at) VALUES (?, ?, ?, 'queued', ?)`,
		projectID, source, payload, now)
	if err != nil {
		return nil, unavailable("create_raw_capture", err)
	}
	id, _ := res.LastInsertId()
	return &types.RawCapture{ID: id, ProjectID: projectID, Source: source, Payload: payload, Status: "queued", CreatedAt: now}, nil
}

// MarkCaptureProcessed flips a capture's status after refinement.
func (s *Store) MarkCaptureProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE raw_captures SET status = 'processed' WHERE id = ?`, id)
	if err != nil {
		return unavailable("mark_capture_processed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Entity: "raw_capture", ID: id}
	}
	return nil
}

// =============================================================================
// INBOX ITEMS
// =============================================================================

const inboxColumns = `id, project_id, raw_capture_id, promoted_memory_id,
	suggested_type, suggested_title, suggested_content, confidence_score,
	status, created_at, updated_at`

func scanInboxItem(row interface{ Scan(...any) error }) (*types.InboxItem, error) {
	var it types.InboxItem
	if err := row.Scan(&it.ID, &it.ProjectID, &it.RawCaptureID, &it.PromotedMemoryID,
		&it.SuggestedType, &it.SuggestedTitle, &it.SuggestedContent,
		&it.ConfidenceScore, &it.Status, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

// CreateInboxItem inserts a pending draft produced by the refinery.
func (s *Store) CreateInboxItem(ctx context.Context, it *types.InboxItem) (*types.InboxItem, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO inbox_items
			(project_id, raw_capture_id, suggested_type, suggested_title,
			 suggested_content, confidence_score, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
		it.ProjectID, it.RawCaptureID, string(it.SuggestedType), it.SuggestedTitle,
		it.SuggestedContent, it.ConfidenceScore, now, now)
	if err != nil {
		return nil, unavailable("create_inbox_item", err)
	}
	id, _ := res.LastInsertId()

	created := *it
	created.ID = id
	created.Status = types.InboxPending
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetInboxItem fetches one inbox item.
func (s *Store) GetInboxItem(ctx context.Context, id int64) (*types.InboxItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+inboxColumns+` FROM inbox_items WHERE id = ?`, id)
	it, err := scanInboxItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Entity: "inbox_item", ID: id}
	}
	if err != nil {
		return nil, unavailable("get_inbox_item", err)
	}
	return it, nil
}

// ListInbox pages a project's inbox, optionally filtered by status.
func (s *Store) ListInbox(ctx context.Context, projectID int64, status types.InboxStatus, limit, offset int) ([]types.InboxItem, error) {
	query := `SELECT ` + inboxColumns + ` FROM inbox_items WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list_inbox", err)
	}
	defer rows.Close()

	var out []types.InboxItem
	for rows.Next() {
		it, err := scanInboxItem(rows)
		if err != nil {
			return nil, unavailable("list_inbox", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// ResolveInboxItem moves a pending item to approved or rejected, recording
// the promoted memory on approval. Only pending items can be resolved; a
// second resolution attempt reports a validation error.
func (s *Store) ResolveInboxItem(ctx context.Context, id int64, status types.InboxStatus, promotedMemoryID *int64, actorUserID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("resolve_inbox_item", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE inbox_items SET status = ?, promoted_memory_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		string(status), promotedMemoryID, time.Now().UTC(), id)
	if err != nil {
		return unavailable("resolve_inbox_item", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Missing row or already resolved; tell them apart for the caller.
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT status FROM inbox_items WHERE id = ?`, id).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return &types.NotFoundError{Entity: "inbox_item", ID: id}
		}
		if err != nil {
			return unavailable("resolve_inbox_item", err)
		}
		return &types.ValidationError{Field: "status", Reason: "inbox item already " + existing}
	}

	if err := insertAuditTx(ctx, tx, actorUserID, "inbox."+string(status), "inbox_item", id, ""); err != nil {
		return unavailable("resolve_inbox_item", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("resolve_inbox_item", err)
	}
	return nil
}
