package store

import (
	"context"
	"database/sql"
	"time"
)

// insertAuditTx appends one audit record inside an existing transaction.
// actorUserID of 0 records a system action.
func insertAuditTx(ctx context.Context, tx *sql.Tx, actorUserID int64, action, entity string, entityID int64, detail string) error {
	var actor any
	if actorUserID != 0 {
		actor = actorUserID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (actor_user_id, action, entity, entity_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		actor, action, entity, entityID, detail, time.Now().UTC())
	return err
}
