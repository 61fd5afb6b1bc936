// Package pipeline owns every path that creates a memory: direct API
// writes, inbox approvals, and the background reindexer. All paths share the
// same steps so the derived columns (content hash, FTS entry, embedding,
// Hilbert index) are computed the same way no matter how a memory arrives.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"contextcache/internal/embedding"
	"contextcache/internal/logging"
	"contextcache/internal/sfc"
	"contextcache/internal/store"
	"contextcache/internal/types"
)

// Validation caps. Content is capped well above any realistic snippet;
// metadata caps keep a single row from ballooning the pack rendering.
const (
	maxTitleLen        = 500
	maxContentLen      = 100_000
	maxMetadataKeys    = 32
	maxMetadataValLen  = 8 * 1024
	maxIngestPayload   = 256 * 1024
	maxSuggestTitleLen = 80
)

// =============================================================================
// CONTENT HASHING
// =============================================================================

// CanonicalizeContent strips trailing whitespace so cosmetically different
// pastes of the same snippet dedup to one memory. Leading whitespace is
// significant (code indentation).
func CanonicalizeContent(content string) string {
	return strings.TrimRight(content, " \t\r\n")
}

// HashContent returns the hex sha256 of the canonical content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(CanonicalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// WRITER
// =============================================================================

// CreateMemoryInput is one validated write request.
type CreateMemoryInput struct {
	ProjectID       int64
	CreatedByUserID int64
	Type            types.MemoryType
	Source          types.MemorySource
	Title           string
	Content         string
	Metadata        map[string]string
}

// Writer runs the full write pipeline.
type Writer struct {
	store     *store.Store
	engine    embedding.Engine
	indexer   *sfc.Indexer
	reindexer *Reindexer // optional; nil disables post-commit re-embedding
}

// NewWriter builds a writer. reindexer may be nil.
func NewWriter(s *store.Store, engine embedding.Engine, indexer *sfc.Indexer, reindexer *Reindexer) *Writer {
	return &Writer{store: s, engine: engine, indexer: indexer, reindexer: reindexer}
}

// validate applies the per-field caps.
func (w *Writer) validate(in *CreateMemoryInput) error {
	if strings.TrimSpace(in.Content) == "" {
		return &types.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if len(in.Content) > maxContentLen {
		return &types.ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d bytes", maxContentLen)}
	}
	if len(in.Title) > maxTitleLen {
		return &types.ValidationError{Field: "title", Reason: fmt.Sprintf("exceeds %d characters", maxTitleLen)}
	}
	if !in.Type.Valid() {
		return &types.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown memory type %q", in.Type)}
	}
	if len(in.Metadata) > maxMetadataKeys {
		return &types.ValidationError{Field: "metadata", Reason: fmt.Sprintf("more than %d keys", maxMetadataKeys)}
	}
	for k, v := range in.Metadata {
		if len(v) > maxMetadataValLen {
			return &types.ValidationError{Field: "metadata", Reason: fmt.Sprintf("value for %q exceeds %d bytes", k, maxMetadataValLen)}
		}
	}
	if in.Source == "" {
		in.Source = types.SourceAPI
	}
	return nil
}

// embeddingText joins title and content the way the ranker will see them.
func embeddingText(title, content string) string {
	if title == "" {
		return content
	}
	return title + "\n" + content
}

// CreateMemory validates, hashes, embeds, indexes, and persists one memory.
// The store commits the row and all derived columns atomically. The second
// return is false when the content deduplicated to an existing row. After a
// fresh commit the memory is queued for background re-embedding when the
// reindex worker is on.
func (w *Writer) CreateMemory(ctx context.Context, in CreateMemoryInput) (*types.Memory, bool, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "CreateMemory")
	defer timer.Stop()

	if err := w.validate(&in); err != nil {
		return nil, false, err
	}

	content := CanonicalizeContent(in.Content)
	m := &types.Memory{
		ProjectID:       in.ProjectID,
		CreatedByUserID: in.CreatedByUserID,
		Type:            in.Type,
		Source:          in.Source,
		Title:           strings.TrimSpace(in.Title),
		Content:         content,
		Metadata:        in.Metadata,
		ContentHash:     HashContent(content),
	}

	vec, err := w.engine.Embed(ctx, embeddingText(m.Title, m.Content))
	if err != nil {
		// Only the pure local engine can error here, and only on internal
		// bugs; remote failures already degraded inside the engine.
		return nil, false, fmt.Errorf("embedding failed: %w", err)
	}
	m.Embedding = vec
	if h, ok := w.indexer.Index(vec); ok {
		m.HilbertIndex = &h
	}

	created, fresh, err := w.store.CreateMemory(ctx, m)
	if err != nil {
		return nil, false, err
	}
	if fresh && w.reindexer != nil {
		w.reindexer.Enqueue(created.ID)
	}

	logging.PipelineDebug("memory write: id=%d project=%d fresh=%v", created.ID, created.ProjectID, fresh)
	return created, fresh, nil
}

// =============================================================================
// INBOX RESOLUTION
// =============================================================================

// InboxEdits carries the optional reviewer overrides applied at approval.
type InboxEdits struct {
	Type    types.MemoryType
	Title   *string
	Content *string
}

// ApproveInboxItem promotes a pending draft through the write pipeline and
// marks the item approved with a back-reference to the new memory.
func (w *Writer) ApproveInboxItem(ctx context.Context, itemID int64, edits *InboxEdits, actorUserID int64) (*types.Memory, error) {
	item, err := w.store.GetInboxItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != types.InboxPending {
		return nil, &types.ValidationError{Field: "status", Reason: "inbox item already " + string(item.Status)}
	}

	in := CreateMemoryInput{
		ProjectID:       item.ProjectID,
		CreatedByUserID: actorUserID,
		Type:            item.SuggestedType,
		Source:          types.SourceIngestion,
		Title:           item.SuggestedTitle,
		Content:         item.SuggestedContent,
	}
	if edits != nil {
		if edits.Type != "" {
			in.Type = edits.Type
		}
		if edits.Title != nil {
			in.Title = *edits.Title
		}
		if edits.Content != nil {
			in.Content = *edits.Content
		}
	}

	mem, _, err := w.CreateMemory(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := w.store.ResolveInboxItem(ctx, itemID, types.InboxApproved, &mem.ID, actorUserID); err != nil {
		return nil, err
	}
	return mem, nil
}

// RejectInboxItem marks a pending draft rejected.
func (w *Writer) RejectInboxItem(ctx context.Context, itemID, actorUserID int64) error {
	return w.store.ResolveInboxItem(ctx, itemID, types.InboxRejected, nil, actorUserID)
}
