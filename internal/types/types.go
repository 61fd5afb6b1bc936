// Package types defines the core domain entities shared across ContextCache:
// memories, projects, inbox items, recall decision records, and the typed
// error kinds the HTTP layer maps to status codes.
package types

import "time"

// =============================================================================
// MEMORY
// =============================================================================

// MemoryType classifies a captured snippet.
type MemoryType string

const (
	TypeDecision   MemoryType = "decision"
	TypeFinding    MemoryType = "finding"
	TypeDefinition MemoryType = "definition"
	TypeNote       MemoryType = "note"
	TypeLink       MemoryType = "link"
	TypeTodo       MemoryType = "todo"
	TypeChat       MemoryType = "chat"
	TypeDoc        MemoryType = "doc"
	TypeCode       MemoryType = "code"
	TypeWeb        MemoryType = "web"
	TypeFile       MemoryType = "file"
	TypeEvent      MemoryType = "event"
)

// typePriority drives the optional ranking boost and the CAG warm ordering.
// Decisions matter most when reconstructing project context; ephemera least.
var typePriority = map[MemoryType]int{
	TypeDecision:   10,
	TypeFinding:    9,
	TypeDefinition: 8,
	TypeTodo:       7,
	TypeCode:       6,
	TypeDoc:        5,
	TypeChat:       4,
	TypeNote:       3,
	TypeLink:       2,
	TypeEvent:      1,
	TypeWeb:        1,
	TypeFile:       1,
}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	_, ok := typePriority[t]
	return ok
}

// Priority returns the fixed ranking priority for the type (1..10).
// Unknown types get 0.
func (t MemoryType) Priority() int {
	return typePriority[t]
}

// MemoryTypes lists all valid types.
func MemoryTypes() []MemoryType {
	return []MemoryType{
		TypeDecision, TypeFinding, TypeDefinition, TypeNote, TypeLink,
		TypeTodo, TypeChat, TypeDoc, TypeCode, TypeWeb, TypeFile, TypeEvent,
	}
}

// MemorySource records where a memory came from.
type MemorySource string

const (
	SourceManual    MemorySource = "manual"
	SourceAPI       MemorySource = "api"
	SourceChatGPT   MemorySource = "chatgpt"
	SourceClaude    MemorySource = "claude"
	SourceCursor    MemorySource = "cursor"
	SourceCodex     MemorySource = "codex"
	SourceSeed      MemorySource = "seed"
	SourceIngestion MemorySource = "ingestion"
)

// Memory is the atomic unit of recall: one captured snippet with its
// derived index columns. A memory is owned by its project.
type Memory struct {
	ID              int64             `json:"id"`
	ProjectID       int64             `json:"project_id"`
	CreatedByUserID int64             `json:"created_by_user_id,omitempty"`
	Type            MemoryType        `json:"type"`
	Source          MemorySource      `json:"source"`
	Title           string            `json:"title,omitempty"`
	Content         string            `json:"content"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ContentHash     string            `json:"content_hash,omitempty"`
	Embedding       []float32         `json:"-"`
	HilbertIndex    *int64            `json:"-"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// =============================================================================
// TENANCY
// =============================================================================

// Organization is the tenant boundary. Every project, memory, and recall
// log hangs off exactly one org.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User is an authenticated actor. Unlimited users bypass the usage gate.
type User struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Email     string    `json:"email"`
	APIKey    string    `json:"-"`
	Unlimited bool      `json:"unlimited"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is the container for memories. Deleting a project cascades to
// its memories, inbox items, and logs.
type Project struct {
	ID              int64     `json:"id"`
	OrgID           int64     `json:"org_id"`
	Name            string    `json:"name"`
	CreatedByUserID int64     `json:"created_by_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// =============================================================================
// INBOX / INGESTION
// =============================================================================

// InboxStatus is the lifecycle state of an inbox item.
type InboxStatus string

const (
	InboxPending  InboxStatus = "pending"
	InboxApproved InboxStatus = "approved"
	InboxRejected InboxStatus = "rejected"
)

// InboxItem is a draft memory produced by the ingestion refinery, waiting
// for a human to approve or reject it.
type InboxItem struct {
	ID               int64       `json:"id"`
	ProjectID        int64       `json:"project_id"`
	RawCaptureID     *int64      `json:"raw_capture_id,omitempty"`
	PromotedMemoryID *int64      `json:"promoted_memory_id,omitempty"`
	SuggestedType    MemoryType  `json:"suggested_type"`
	SuggestedTitle   string      `json:"suggested_title,omitempty"`
	SuggestedContent string      `json:"suggested_content"`
	ConfidenceScore  float64     `json:"confidence_score"`
	Status           InboxStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// RawCapture is an unprocessed payload queued for the refinery.
type RawCapture struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Source    string    `json:"source"`
	Payload   string    `json:"payload"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// RECALL DECISION RECORDS
// =============================================================================

// Recall strategies.
const (
	StrategyHybrid        = "hybrid"
	StrategyRecency       = "recency"
	StrategyCache         = "cache"
	StrategyCacheFallback = "cache_fallback"
)

// ServedBy values for recall timings.
const (
	ServedByCAG        = "cag"
	ServedByRAG        = "rag"
	ServedByCAGThenRAG = "cag_then_rag"
	ServedByRAGThenCAG = "rag_then_cag"
)

// ScoreTrace holds the per-channel contributions for one candidate, so any
// ranking decision can be reproduced from its log row.
type ScoreTrace struct {
	FTS     float64 `json:"fts"`
	Vector  float64 `json:"vector"`
	Recency float64 `json:"recency"`
	Prior   float64 `json:"prior,omitempty"`
	Total   float64 `json:"total"`
}

// RecallWeights are the fusion weights applied by the hybrid ranker.
type RecallWeights struct {
	FTS     float64 `json:"fts"`
	Vector  float64 `json:"vector"`
	Recency float64 `json:"recency"`
}

// RecallLog is the immutable record of one ranking decision.
type RecallLog struct {
	ID              int64                `json:"id"`
	OrgID           int64                `json:"org_id"`
	ProjectID       int64                `json:"project_id"`
	ActorUserID     *int64               `json:"actor_user_id,omitempty"`
	Strategy        string               `json:"strategy"`
	QueryText       string               `json:"query_text"`
	InputMemoryIDs  []int64              `json:"input_memory_ids"`
	RankedMemoryIDs []int64              `json:"ranked_memory_ids"`
	Weights         RecallWeights        `json:"weights"`
	ScoreDetails    map[int64]ScoreTrace `json:"score_details"`
	CreatedAt       time.Time            `json:"created_at"`
}

// RecallTiming records the hedging outcome and per-branch latencies of a
// single recall request.
type RecallTiming struct {
	ID              int64     `json:"id"`
	OrgID           int64     `json:"org_id"`
	ProjectID       int64     `json:"project_id"`
	ActorUserID     *int64    `json:"actor_user_id,omitempty"`
	ServedBy        string    `json:"served_by"`
	Strategy        string    `json:"strategy"`
	HedgeDelayMS    int64     `json:"hedge_delay_ms"`
	CAGDurationMS   *int64    `json:"cag_duration_ms,omitempty"`
	RAGDurationMS   *int64    `json:"rag_duration_ms,omitempty"`
	TotalDurationMS int64     `json:"total_duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// =============================================================================
// USAGE
// =============================================================================

// UsageCounters are the per-user, per-day counters the gate reads.
// The day key is UTC; counters reset implicitly when the date rolls over.
type UsageCounters struct {
	UserID          int64  `json:"user_id"`
	Day             string `json:"day"`
	MemoriesCreated int64  `json:"memories_created"`
	RecallQueries   int64  `json:"recall_queries"`
	ProjectsCreated int64  `json:"projects_created"`
}

// Usage counter field names, matching usage_counters columns.
const (
	UsageMemoriesCreated = "memories_created"
	UsageRecallQueries   = "recall_queries"
	UsageProjectsCreated = "projects_created"
)

// DayKey formats t as the UTC usage-counter day key.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
