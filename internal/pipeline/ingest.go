package pipeline

import (
	"context"
	"strings"

	"contextcache/internal/logging"
	"contextcache/internal/store"
	"contextcache/internal/types"
)

// Refiner turns a raw capture into a draft memory for the inbox. The default
// implementation is heuristic; richer refiners (LLM summarizers) plug in
// behind the same interface.
type Refiner interface {
	Refine(ctx context.Context, capture *types.RawCapture) (*types.InboxItem, error)
}

// DraftRefiner is the built-in heuristic refiner: the first line becomes the
// suggested title, the whole payload the suggested content, typed as a note
// with middling confidence so reviewers know it was not classified.
type DraftRefiner struct{}

// Refine implements Refiner.
func (DraftRefiner) Refine(_ context.Context, capture *types.RawCapture) (*types.InboxItem, error) {
	payload := CanonicalizeContent(capture.Payload)
	title := firstLine(payload)
	if len(title) > maxSuggestTitleLen {
		title = title[:maxSuggestTitleLen]
	}
	return &types.InboxItem{
		ProjectID:        capture.ProjectID,
		RawCaptureID:     &capture.ID,
		SuggestedType:    types.TypeNote,
		SuggestedTitle:   title,
		SuggestedContent: payload,
		ConfidenceScore:  0.5,
	}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// Ingestor accepts raw payloads and runs them through the refinery into the
// inbox. The capture row is persisted before refinement so nothing is lost
// if refinement fails; failed captures stay queued for a later retry pass.
type Ingestor struct {
	store   *store.Store
	refiner Refiner
}

// NewIngestor builds an ingestor. A nil refiner gets the DraftRefiner.
func NewIngestor(s *store.Store, refiner Refiner) *Ingestor {
	if refiner == nil {
		refiner = DraftRefiner{}
	}
	return &Ingestor{store: s, refiner: refiner}
}

// Ingest persists the raw capture, refines it, and files the draft in the
// inbox. Returns the capture so callers can acknowledge receipt immediately.
func (ig *Ingestor) Ingest(ctx context.Context, projectID int64, source, payload string) (*types.RawCapture, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, &types.ValidationError{Field: "payload", Reason: "must not be empty"}
	}
	if len(payload) > maxIngestPayload {
		return nil, &types.ValidationError{Field: "payload", Reason: "payload too large"}
	}
	if source == "" {
		source = "api"
	}

	capture, err := ig.store.CreateRawCapture(ctx, projectID, source, payload)
	if err != nil {
		return nil, err
	}

	draft, err := ig.refiner.Refine(ctx, capture)
	if err != nil {
		// Keep the capture queued; a retry pass can refine it later.
		logging.Get(logging.CategoryIngest).Warnf("refinement of capture %d failed: %v", capture.ID, err)
		return capture, nil
	}

	if _, err := ig.store.CreateInboxItem(ctx, draft); err != nil {
		return nil, err
	}
	if err := ig.store.MarkCaptureProcessed(ctx, capture.ID); err != nil {
		return nil, err
	}
	logging.PipelineDebug("capture %d refined into inbox draft for project %d", capture.ID, projectID)
	return capture, nil
}
