package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"contextcache/internal/pipeline"
	"contextcache/internal/recall"
	"contextcache/internal/types"
)

// =============================================================================
// HEALTH
// =============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// =============================================================================
// RECALL
// =============================================================================

type recallItem struct {
	ID        int64              `json:"id"`
	Type      types.MemoryType   `json:"type"`
	Source    types.MemorySource `json:"source"`
	Title     string             `json:"title,omitempty"`
	Content   string             `json:"content"`
	CreatedAt time.Time          `json:"created_at"`
	RankScore *float64           `json:"rank_score,omitempty"`
}

func (s *Server) handleRecall(c *gin.Context) {
	project, err := s.loadProject(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	// "query" is the documented parameter; "q" is kept as a short alias.
	query := c.Query("query")
	if query == "" {
		query = c.Query("q")
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := s.dispatcher.Recall(c.Request.Context(), recall.Request{
		OrgID:     project.OrgID,
		ProjectID: project.ID,
		Actor:     currentUser(c),
		Query:     query,
		Limit:     limit,
		ClientIP:  c.ClientIP(),
		Strategy:  c.Query("strategy"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	recallServed.WithLabelValues(res.Strategy, res.ServedBy).Inc()

	items := make([]recallItem, 0, len(res.Memories))
	for _, m := range res.Memories {
		item := recallItem{
			ID:        m.ID,
			Type:      m.Type,
			Source:    m.Source,
			Title:     m.Title,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if score, ok := res.Trace[m.ID]; ok {
			total := score.Total
			item.RankScore = &total
		}
		items = append(items, item)
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id":       project.ID,
		"query":            query,
		"strategy":         res.Strategy,
		"served_by":        res.ServedBy,
		"memory_pack_text": res.PackText,
		"items":            items,
	})
}

// =============================================================================
// MEMORIES
// =============================================================================

type createMemoryRequest struct {
	Type     types.MemoryType   `json:"type"`
	Source   types.MemorySource `json:"source"`
	Title    string             `json:"title"`
	Content  string             `json:"content"`
	Metadata map[string]string  `json:"metadata"`
}

func (s *Server) handleCreateMemory(c *gin.Context) {
	project, err := s.loadProject(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &types.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	user := currentUser(c)
	if err := s.gate.AllowWrite(c.Request.Context(), c.ClientIP(), user); err != nil {
		writeError(c, err)
		return
	}

	memory, fresh, err := s.writer.CreateMemory(c.Request.Context(), pipeline.CreateMemoryInput{
		ProjectID:       project.ID,
		CreatedByUserID: user.ID,
		Type:            req.Type,
		Source:          req.Source,
		Title:           req.Title,
		Content:         req.Content,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if !fresh {
		writeError(c, &types.ConflictError{ExistingID: memory.ID})
		return
	}
	c.JSON(http.StatusCreated, memory)
}

func (s *Server) handleListMemories(c *gin.Context) {
	project, err := s.loadProject(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	limit, offset := pagination(c, 50, 200)
	memories, err := s.store.ListMemories(c.Request.Context(), project.ID, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": project.ID, "memories": memories})
}

// =============================================================================
// INGESTION AND INBOX
// =============================================================================

type ingestRequest struct {
	ProjectID int64  `json:"project_id"`
	Source    string `json:"source"`
	Payload   string `json:"payload"`
}

func (s *Server) handleIngestRaw(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, &types.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}

	project, err := s.projectForOrg(c, req.ProjectID)
	if err != nil {
		writeError(c, err)
		return
	}
	user := currentUser(c)
	if err := s.gate.AllowIngest(c.Request.Context(), c.ClientIP(), user); err != nil {
		writeError(c, err)
		return
	}

	capture, err := s.ingestor.Ingest(c.Request.Context(), project.ID, req.Source, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "capture_id": capture.ID})
}

func (s *Server) handleListInbox(c *gin.Context) {
	project, err := s.loadProject(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}

	status := types.InboxStatus(c.Query("status"))
	switch status {
	case "", types.InboxPending, types.InboxApproved, types.InboxRejected:
	default:
		writeError(c, &types.ValidationError{Field: "status", Reason: "unknown inbox status"})
		return
	}

	limit, offset := pagination(c, 50, 200)
	items, err := s.store.ListInbox(c.Request.Context(), project.ID, status, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": project.ID, "items": items})
}

type approveRequest struct {
	Type    types.MemoryType `json:"type"`
	Title   *string          `json:"title"`
	Content *string          `json:"content"`
}

func (s *Server) handleApproveInbox(c *gin.Context) {
	item, err := s.loadInboxItem(c)
	if err != nil {
		writeError(c, err)
		return
	}

	var req approveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &types.ValidationError{Field: "body", Reason: "malformed JSON"})
			return
		}
	}

	user := currentUser(c)
	if err := s.gate.AllowWrite(c.Request.Context(), c.ClientIP(), user); err != nil {
		writeError(c, err)
		return
	}

	memory, err := s.writer.ApproveInboxItem(c.Request.Context(), item.ID, &pipeline.InboxEdits{
		Type:    req.Type,
		Title:   req.Title,
		Content: req.Content,
	}, user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memory)
}

func (s *Server) handleRejectInbox(c *gin.Context) {
	item, err := s.loadInboxItem(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.writer.RejectInboxItem(c.Request.Context(), item.ID, currentUser(c).ID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": item.ID, "status": string(types.InboxRejected)})
}

// loadInboxItem fetches the item named in the URL and checks tenancy through
// its project.
func (s *Server) loadInboxItem(c *gin.Context) (*types.InboxItem, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return nil, &types.ValidationError{Field: "id", Reason: "must be an integer id"}
	}
	item, err := s.store.GetInboxItem(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if _, err := s.projectForOrg(c, item.ProjectID); err != nil {
		return nil, &types.NotFoundError{Entity: "inbox_item", ID: id}
	}
	return item, nil
}

// projectForOrg loads a project by id and enforces org ownership.
func (s *Server) projectForOrg(c *gin.Context, projectID int64) (*types.Project, error) {
	project, err := s.store.GetProject(c.Request.Context(), projectID)
	if err != nil {
		return nil, err
	}
	if user := currentUser(c); user != nil && project.OrgID != user.OrgID {
		return nil, &types.NotFoundError{Entity: "project", ID: projectID}
	}
	return project, nil
}

// =============================================================================
// PROJECTS
// =============================================================================

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(c, &types.ValidationError{Field: "name", Reason: "must not be empty"})
		return
	}

	user := currentUser(c)
	if err := s.gate.AllowProjectCreate(c.Request.Context(), user); err != nil {
		writeError(c, err)
		return
	}

	project, err := s.store.CreateProject(c.Request.Context(), user.OrgID, user.ID, strings.TrimSpace(req.Name))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context(), currentUser(c).OrgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// =============================================================================
// USAGE AND ADMIN
// =============================================================================

func (s *Server) handleUsage(c *gin.Context) {
	user := currentUser(c)
	day := types.DayKey(time.Now())
	usage, err := s.store.UsageForDay(c.Request.Context(), user.ID, day)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"day":              day,
		"unlimited":        user.Unlimited,
		"memories_created": usage.MemoriesCreated,
		"recall_queries":   usage.RecallQueries,
		"projects_created": usage.ProjectsCreated,
		"limits": gin.H{
			"daily_memory_limit":  s.limits.DailyMemoryLimit,
			"daily_recall_limit":  s.limits.DailyRecallLimit,
			"daily_project_limit": s.limits.DailyProjectLimit,
		},
	})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": s.cache.Enabled(), "stats": s.cache.Stats()})
}

// pagination reads limit/offset query params with a default and a cap.
func pagination(c *gin.Context, def, max int) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	offset, _ = strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
