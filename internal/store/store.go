// Package store persists all ContextCache state in embedded SQLite:
// tenancy, memories with their derived index columns (FTS entry, embedding
// blob, Hilbert position, content hash), inbox drafts, recall decision
// records, and usage counters. Every memory insert commits the row and all
// derived columns in one transaction; no reader ever observes a memory with
// mismatched indexes.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"contextcache/internal/logging"
	"contextcache/internal/types"
)

// Store wraps the SQLite database.
type Store struct {
	db        *sql.DB
	path      string
	dims      int
	vectorExt bool // sqlite-vec vec0 module available
}

// Open initializes the SQLite database at path. dims is the embedding
// dimensionality, used to declare the optional ANN virtual table.
func Open(path string, dims int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	logging.Store("Opening store at path: %s", path)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}

	s := &Store{db: db, path: path, dims: dims}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.vectorExt {
		logging.Store("sqlite-vec extension detected, ANN candidate pool enabled")
		if err := s.initVecTable(); err != nil {
			logging.Get(logging.CategoryStore).Warnf("vec table init failed, continuing without ANN pool: %v", err)
			s.vectorExt = false
		}
	} else {
		logging.StoreDebug("sqlite-vec extension not available; candidate pools use the hilbert prefilter")
	}

	logging.Store("Store initialization complete")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates all tables and indexes.
func (s *Store) initialize() error {
	tenancy := `
	CREATE TABLE IF NOT EXISTS organizations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL REFERENCES organizations(id),
		email TEXT NOT NULL UNIQUE,
		api_key TEXT UNIQUE,
		unlimited INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_users_api_key ON users(api_key);
	CREATE TABLE IF NOT EXISTS memberships (
		user_id INTEGER NOT NULL REFERENCES users(id),
		org_id INTEGER NOT NULL REFERENCES organizations(id),
		role TEXT NOT NULL DEFAULT 'member',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, org_id)
	);
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL REFERENCES organizations(id),
		name TEXT NOT NULL,
		created_by_user_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_projects_org ON projects(org_id);
	`

	memories := `
	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		created_by_user_id INTEGER,
		type TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'api',
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		content_hash TEXT NOT NULL,
		embedding BLOB,
		hilbert_index INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (project_id, content_hash)
	);
	CREATE INDEX IF NOT EXISTS idx_memories_project_created ON memories(project_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_project_hilbert ON memories(project_id, hilbert_index);
	`

	// External-content FTS5: rows are maintained explicitly inside the same
	// transaction as the memories row.
	fts := `
	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		title, content,
		content='memories',
		content_rowid='id'
	);
	`

	ingestion := `
	CREATE TABLE IF NOT EXISTS raw_captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		source TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS inbox_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id),
		raw_capture_id INTEGER REFERENCES raw_captures(id),
		promoted_memory_id INTEGER REFERENCES memories(id),
		suggested_type TEXT NOT NULL DEFAULT 'note',
		suggested_title TEXT NOT NULL DEFAULT '',
		suggested_content TEXT NOT NULL,
		confidence_score REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_inbox_project_status ON inbox_items(project_id, status);
	`

	observability := `
	CREATE TABLE IF NOT EXISTS recall_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		actor_user_id INTEGER,
		strategy TEXT NOT NULL,
		query_text TEXT NOT NULL,
		input_memory_ids TEXT NOT NULL DEFAULT '[]',
		ranked_memory_ids TEXT NOT NULL DEFAULT '[]',
		weights TEXT NOT NULL DEFAULT '{}',
		score_details TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_recall_logs_project ON recall_logs(project_id, created_at DESC);
	CREATE TABLE IF NOT EXISTS recall_timings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		org_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		actor_user_id INTEGER,
		served_by TEXT NOT NULL,
		strategy TEXT NOT NULL,
		hedge_delay_ms INTEGER NOT NULL DEFAULT 0,
		cag_duration_ms INTEGER,
		rag_duration_ms INTEGER,
		total_duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_user_id INTEGER,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id INTEGER,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	usage := `
	CREATE TABLE IF NOT EXISTS usage_counters (
		user_id INTEGER NOT NULL,
		day TEXT NOT NULL,
		memories_created INTEGER NOT NULL DEFAULT 0,
		recall_queries INTEGER NOT NULL DEFAULT 0,
		projects_created INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, day)
	);
	`

	for _, stmt := range []string{tenancy, memories, fts, ingestion, observability, usage} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// detectVecExtension probes for a working vec0 virtual table module.
// Only present in builds compiled with the sqlite_vec tag; the default pure
// Go build degrades to the Hilbert-prefiltered exact path.
func (s *Store) detectVecExtension() {
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// initVecTable declares the ANN candidate pool table. Rowids mirror
// memories.id so pool results join straight back.
func (s *Store) initVecTable() error {
	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS memories_vec USING vec0(embedding float[%d])", s.dims)
	_, err := s.db.Exec(stmt)
	return err
}

// unavailable wraps a database error as a typed availability failure.
func unavailable(op string, err error) error {
	return &types.UnavailableError{Op: op, Err: err}
}
