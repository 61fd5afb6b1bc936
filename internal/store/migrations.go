package store

import (
	"database/sql"
	"fmt"

	"contextcache/internal/logging"
)

// Migration defines a database schema migration: a column added to an
// existing table after release.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists all schema migrations to apply. These handle
// databases created before the column existed; fresh schemas already
// include everything here.
var pendingMigrations = []Migration{
	// Unlimited flag for internal users (added with the usage gate)
	{"users", "unlimited", "INTEGER NOT NULL DEFAULT 0"},
	// Raw capture processing status (added with the ingestion refinery)
	{"raw_captures", "status", "TEXT NOT NULL DEFAULT 'queued'"},
	// Promotion back-reference (added with inbox approval)
	{"inbox_items", "promoted_memory_id", "INTEGER REFERENCES memories(id)"},
	// Per-branch hedge durations (added with recall timing capture)
	{"recall_timings", "cag_duration_ms", "INTEGER"},
	{"recall_timings", "rag_duration_ms", "INTEGER"},
}

// RunMigrations applies schema migrations for existing databases.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	appliedCount := 0
	skippedCount := 0

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skippedCount++
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			skippedCount++
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			logging.Get(logging.CategoryStore).Warnf("Migration failed (may already exist): %s.%s: %v", m.Table, m.Column, err)
			skippedCount++
			continue
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		appliedCount++
	}

	logging.StoreDebug("Schema migrations complete: applied=%d, skipped=%d", appliedCount, skippedCount)
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks sqlite_master for the table.
func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	return err == nil
}
