package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"contextcache/internal/embedding"
	"contextcache/internal/logging"
	"contextcache/internal/sfc"
	"contextcache/internal/types"
)

// =============================================================================
// WRITES
// =============================================================================

// CreateMemory inserts a memory with every derived column in one
// transaction: the row itself, its FTS entry, the optional ANN pool row, the
// creator's usage counter, and the audit record. On a (project_id,
// content_hash) collision the existing row is returned unchanged and the
// second return is false.
func (s *Store) CreateMemory(ctx context.Context, m *types.Memory) (*types.Memory, bool, error) {
	timer := logging.StartTimer(logging.CategoryStore, "CreateMemory")
	defer timer.Stop()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, unavailable("create_memory", err)
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM memories WHERE project_id = ? AND content_hash = ?`,
		m.ProjectID, m.ContentHash).Scan(&existingID)
	if err == nil {
		existing, gerr := s.getMemoryTx(ctx, tx, existingID)
		if gerr != nil {
			return nil, false, gerr
		}
		if cerr := tx.Commit(); cerr != nil {
			return nil, false, unavailable("create_memory", cerr)
		}
		logging.StoreDebug("dedup hit: project=%d hash=%s existing=%d", m.ProjectID, m.ContentHash, existingID)
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, unavailable("create_memory", err)
	}

	now := time.Now().UTC()
	metaJSON, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories
			(project_id, created_by_user_id, type, source, title, content,
			 metadata, content_hash, embedding, hilbert_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.CreatedByUserID, string(m.Type), string(m.Source),
		m.Title, m.Content, string(metaJSON), m.ContentHash,
		encodeVector(m.Embedding), m.HilbertIndex, now, now)
	if err != nil {
		return nil, false, unavailable("create_memory", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, unavailable("create_memory", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memories_fts(rowid, title, content) VALUES (?, ?, ?)`,
		id, m.Title, m.Content); err != nil {
		return nil, false, unavailable("create_memory", err)
	}

	if s.vectorExt && len(m.Embedding) > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memories_vec(rowid, embedding) VALUES (?, ?)`,
			id, encodeVector(m.Embedding)); err != nil {
			// ANN pool is an accelerator, not a source of truth.
			logging.Get(logging.CategoryStore).Warnf("vec pool insert failed for memory %d: %v", id, err)
		}
	}

	if m.CreatedByUserID != 0 {
		if err := incrementUsageTx(ctx, tx, m.CreatedByUserID, types.UsageMemoriesCreated, now); err != nil {
			return nil, false, unavailable("create_memory", err)
		}
	}
	if err := insertAuditTx(ctx, tx, m.CreatedByUserID, "memory.create", "memory", id, ""); err != nil {
		return nil, false, unavailable("create_memory", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, unavailable("create_memory", err)
	}

	created := *m
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, true, nil
}

// UpdateMemoryEmbedding replaces a memory's embedding and Hilbert index,
// keeping the ANN pool row in step. Used by the background reindexer.
func (s *Store) UpdateMemoryEmbedding(ctx context.Context, id int64, vec []float32, hilbert *int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("update_embedding", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET embedding = ?, hilbert_index = ?, updated_at = ? WHERE id = ?`,
		encodeVector(vec), hilbert, now, id)
	if err != nil {
		return unavailable("update_embedding", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &types.NotFoundError{Entity: "memory", ID: id}
	}

	if s.vectorExt && len(vec) > 0 {
		_, _ = tx.ExecContext(ctx, `DELETE FROM memories_vec WHERE rowid = ?`, id)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO memories_vec(rowid, embedding) VALUES (?, ?)`,
			id, encodeVector(vec)); err != nil {
			logging.Get(logging.CategoryStore).Warnf("vec pool update failed for memory %d: %v", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("update_embedding", err)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

const memoryColumns = `id, project_id, created_by_user_id, type, source, title,
	content, metadata, content_hash, embedding, hilbert_index, created_at, updated_at`

func scanMemory(row interface{ Scan(...any) error }) (*types.Memory, error) {
	var m types.Memory
	var metaJSON string
	var blob []byte
	var createdBy sql.NullInt64
	if err := row.Scan(&m.ID, &m.ProjectID, &createdBy, &m.Type, &m.Source,
		&m.Title, &m.Content, &metaJSON, &m.ContentHash, &blob,
		&m.HilbertIndex, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if createdBy.Valid {
		m.CreatedByUserID = createdBy.Int64
	}
	if metaJSON != "" && metaJSON != "{}" {
		if err := json.Unmarshal([]byte(metaJSON), &m.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata for memory %d: %w", m.ID, err)
		}
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("memory %d: %w", m.ID, err)
	}
	m.Embedding = vec
	return &m, nil
}

// GetMemory fetches one memory by ID.
func (s *Store) GetMemory(ctx context.Context, id int64) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &types.NotFoundError{Entity: "memory", ID: id}
	}
	if err != nil {
		return nil, unavailable("get_memory", err)
	}
	return m, nil
}

func (s *Store) getMemoryTx(ctx context.Context, tx *sql.Tx, id int64) (*types.Memory, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err != nil {
		return nil, unavailable("get_memory", err)
	}
	return m, nil
}

// GetMemoriesByIDs fetches memories preserving the order of ids. Missing
// IDs are silently dropped; callers treat the ranked list as advisory.
func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []int64) ([]types.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, unavailable("get_memories", err)
	}
	defer rows.Close()

	byID := make(map[int64]types.Memory, len(ids))
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, unavailable("get_memories", err)
		}
		byID[m.ID] = *m
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("get_memories", err)
	}

	out := make([]types.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListMemories pages through a project's memories, newest first.
func (s *Store) ListMemories(ctx context.Context, projectID int64, limit, offset int) ([]types.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE project_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`, projectID, limit, offset)
	if err != nil {
		return nil, unavailable("list_memories", err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, unavailable("list_memories", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// =============================================================================
// RETRIEVAL CANDIDATES
// =============================================================================

// Candidate is one scored retrieval result before fusion.
type Candidate struct {
	ID        int64
	Score     float64
	CreatedAt time.Time
	Type      types.MemoryType
}

// ftsMatchQuery turns free text into an OR query of quoted terms. Quoting
// keeps FTS5 operators in user input (AND, NEAR, parens) from being parsed
// as syntax.
func ftsMatchQuery(query string) string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r >= 0x80)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}

// LexicalCandidates runs BM25 full-text retrieval over a project. Titles
// weigh double. Score order is descending; ties break newest first.
func (s *Store) LexicalCandidates(ctx context.Context, projectID int64, query string, limit int) ([]Candidate, error) {
	match := ftsMatchQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, -bm25(memories_fts, 2.0, 1.0) AS score, m.created_at, m.type
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.project_id = ?
		ORDER BY score DESC, m.created_at DESC, m.id DESC
		LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, unavailable("lexical_candidates", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Score, &c.CreatedAt, &c.Type); err != nil {
			return nil, unavailable("lexical_candidates", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// VectorOptions bound one vector retrieval pass.
type VectorOptions struct {
	Indexer          *sfc.Indexer
	InitialRadius    int64
	RadiusMultiplier float64
	MinPoolSize      int
	MaxRadius        int64
	MinScore         float64
	Limit            int
}

// vecPoolRow is one candidate pulled from an index window before exact
// scoring.
type vecPoolRow struct {
	id        int64
	embedding []float32
	createdAt time.Time
	memType   types.MemoryType
}

// VectorCandidates retrieves the project's nearest memories by exact cosine
// similarity. The pool is prefiltered through adaptive Hilbert windows when
// the indexer is enabled; the window doubles until it holds MinPoolSize rows
// or exceeds MaxRadius, then falls back to a full project scan.
func (s *Store) VectorCandidates(ctx context.Context, projectID int64, queryVec []float32, opts VectorOptions) ([]Candidate, error) {
	timer := logging.StartTimer(logging.CategoryStore, "VectorCandidates")
	defer timer.Stop()

	if len(queryVec) == 0 {
		return nil, nil
	}

	pool, err := s.vectorPool(ctx, projectID, queryVec, opts)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(pool))
	for _, row := range pool {
		score := embedding.CosineSimilarity(queryVec, row.embedding)
		if score < opts.MinScore {
			continue
		}
		out = append(out, Candidate{ID: row.id, Score: score, CreatedAt: row.createdAt, Type: row.memType})
	}

	// Exact order: score desc, then newest first.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID > out[j].ID
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// vectorPool selects the candidate rows to score exactly.
func (s *Store) vectorPool(ctx context.Context, projectID int64, queryVec []float32, opts VectorOptions) ([]vecPoolRow, error) {
	if opts.Indexer != nil && opts.Indexer.Enabled() {
		if center, ok := opts.Indexer.Index(queryVec); ok {
			return s.hilbertWindowPool(ctx, projectID, center, opts)
		}
	}
	return s.fullScanPool(ctx, projectID)
}

// hilbertWindowPool widens the index window until enough rows are found.
func (s *Store) hilbertWindowPool(ctx context.Context, projectID, center int64, opts VectorOptions) ([]vecPoolRow, error) {
	radius := opts.InitialRadius
	for {
		lo, hi := opts.Indexer.Window(center, radius)
		rows, err := s.queryPool(ctx, `
			SELECT id, embedding, created_at, type FROM memories
			WHERE project_id = ? AND embedding IS NOT NULL
			  AND hilbert_index BETWEEN ? AND ?`, projectID, lo, hi)
		if err != nil {
			return nil, err
		}
		if len(rows) >= opts.MinPoolSize {
			logging.StoreDebug("hilbert window hit: radius=%d pool=%d", radius, len(rows))
			return rows, nil
		}
		if radius >= opts.MaxRadius {
			// The window covered too little even at the cap. Rather than rank
			// from a thin pool, scan the project for exact results.
			if len(rows) > 0 {
				return rows, nil
			}
			return s.fullScanPool(ctx, projectID)
		}
		radius = int64(float64(radius) * opts.RadiusMultiplier)
		if radius > opts.MaxRadius {
			radius = opts.MaxRadius
		}
	}
}

func (s *Store) fullScanPool(ctx context.Context, projectID int64) ([]vecPoolRow, error) {
	return s.queryPool(ctx, `
		SELECT id, embedding, created_at, type FROM memories
		WHERE project_id = ? AND embedding IS NOT NULL`, projectID)
}

func (s *Store) queryPool(ctx context.Context, query string, args ...any) ([]vecPoolRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("vector_candidates", err)
	}
	defer rows.Close()

	var out []vecPoolRow
	for rows.Next() {
		var r vecPoolRow
		var blob []byte
		if err := rows.Scan(&r.id, &blob, &r.createdAt, &r.memType); err != nil {
			return nil, unavailable("vector_candidates", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			logging.Get(logging.CategoryStore).Warnf("skipping memory %d: %v", r.id, err)
			continue
		}
		r.embedding = vec
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecencyFallback returns the project's newest memories. Serves empty
// queries and the case where both recall branches fail.
func (s *Store) RecencyFallback(ctx context.Context, projectID int64, limit int) ([]types.Memory, error) {
	return s.ListMemories(ctx, projectID, limit, 0)
}
