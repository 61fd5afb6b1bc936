package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"contextcache/internal/logging"
	"contextcache/internal/types"
)

const (
	ctxUser      = "user"
	ctxRequestID = "request_id"

	headerAPIKey    = "X-API-Key"
	headerOrgID     = "X-Org-Id"
	headerRequestID = "X-Request-Id"
	sessionCookie   = "cc_session"
)

// requestID tags every request with a UUID, honoring one supplied upstream.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog writes one structured line per request.
func (s *Server) accessLog() gin.HandlerFunc {
	log := logging.Get(logging.CategoryAPI)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("request",
			"id", c.GetString(ctxRequestID),
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

// authenticate resolves the caller from an API key or a session cookie and
// stores the user in the request context. API keys may carry an X-Org-Id
// header; a mismatch with the key's org is a cross-tenant attempt.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.resolveUser(c)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		c.Set(ctxUser, user)
		c.Next()
	}
}

func (s *Server) resolveUser(c *gin.Context) (*types.User, error) {
	if key := c.GetHeader(headerAPIKey); key != "" {
		user, err := s.store.GetUserByAPIKey(c.Request.Context(), key)
		if err != nil {
			return nil, err
		}
		if raw := c.GetHeader(headerOrgID); raw != "" {
			orgID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || orgID != user.OrgID {
				return nil, &types.AuthError{Forbidden: true, Reason: "org mismatch"}
			}
		}
		return user, nil
	}

	if token, err := c.Cookie(sessionCookie); err == nil && token != "" {
		if s.sessions == nil {
			return nil, &types.AuthError{Reason: "session auth not configured"}
		}
		return s.sessions.Validate(c.Request.Context(), token)
	}

	return nil, &types.AuthError{Reason: "missing credentials"}
}

// currentUser returns the authenticated user set by authenticate.
func currentUser(c *gin.Context) *types.User {
	u, _ := c.Get(ctxUser)
	user, _ := u.(*types.User)
	return user
}

// loadProject fetches the project named in the URL and enforces tenancy:
// the project must belong to the caller's org.
func (s *Server) loadProject(c *gin.Context, param string) (*types.Project, error) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil {
		return nil, &types.ValidationError{Field: param, Reason: "must be an integer id"}
	}
	project, err := s.store.GetProject(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if user := currentUser(c); user != nil && project.OrgID != user.OrgID {
		// Hide the project's existence from other tenants.
		return nil, &types.NotFoundError{Entity: "project", ID: id}
	}
	return project, nil
}
