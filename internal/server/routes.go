package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires the full API surface. Every route is served under
// /v1 and at the bare path, so clients that predate the version prefix
// keep working.
//
//	GET  /health                          - liveness, unauthenticated
//	GET  /metrics                         - prometheus scrape, unauthenticated
//
//	GET  /projects                        - list the caller's projects
//	POST /projects                        - create a project
//	GET  /projects/:id/recall             - hedged recall
//	GET  /projects/:id/memories           - list memories
//	POST /projects/:id/memories           - create a memory
//	GET  /projects/:id/inbox              - list inbox drafts
//	POST /inbox/:id/approve               - promote a draft to a memory
//	POST /inbox/:id/reject                - discard a draft
//	POST /ingest/raw                      - queue a raw capture
//	GET  /me/usage                        - today's counters and limits
//	GET  /admin/cache/stats               - CAG cache snapshot
func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/health", s.handleHealth)
	engine.GET("/v1/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, prefix := range []string{"", "/v1"} {
		api := engine.Group(prefix, s.authenticate())

		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)

		projects := api.Group("/projects/:id")
		{
			projects.GET("/recall", s.handleRecall)
			projects.GET("/memories", s.handleListMemories)
			projects.POST("/memories", s.handleCreateMemory)
			projects.GET("/inbox", s.handleListInbox)
		}

		inbox := api.Group("/inbox/:id")
		{
			inbox.POST("/approve", s.handleApproveInbox)
			inbox.POST("/reject", s.handleRejectInbox)
		}

		api.POST("/ingest/raw", s.handleIngestRaw)
		api.GET("/me/usage", s.handleUsage)

		admin := api.Group("/admin")
		{
			admin.GET("/cache/stats", s.handleCacheStats)
		}
	}
}
