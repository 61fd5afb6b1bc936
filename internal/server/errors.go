package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"contextcache/internal/logging"
	"contextcache/internal/types"
)

// writeError maps domain error kinds onto HTTP responses. Unknown errors are
// logged and surfaced as opaque 500s.
func writeError(c *gin.Context, err error) {
	var (
		validation  *types.ValidationError
		notFound    *types.NotFoundError
		conflict    *types.ConflictError
		refused     *types.GateRefusedError
		auth        *types.AuthError
		unavailable *types.UnavailableError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Error(), "field": validation.Field})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "existing_id": conflict.ExistingID})
	case errors.As(err, &refused):
		body := gin.H{"error": refused.Error(), "reason": refused.Reason}
		if secs := refused.RetryAfterSeconds(); secs > 0 {
			c.Header("Retry-After", strconv.FormatInt(secs, 10))
			body["retry_after_seconds"] = secs
		}
		c.JSON(http.StatusTooManyRequests, body)
	case errors.As(err, &auth):
		status := http.StatusUnauthorized
		if auth.Forbidden {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": auth.Error()})
	case errors.As(err, &unavailable):
		logging.Get(logging.CategoryAPI).Errorf("store unavailable: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
	default:
		logging.Get(logging.CategoryAPI).Errorf("unhandled error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
