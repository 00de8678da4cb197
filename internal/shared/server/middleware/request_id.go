package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-backend/internal/shared/telemetry"
)

const (
	requestIDKey    = "requestId"
	RequestIDHeader = "X-Request-Id"
	maxRequestIDLen = 128
)

// RequestID accepts a well-formed X-Request-Id or mints one. The ID is set on
// the gin context, the response header and the request context, so it reaches
// queued runs and their logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Request = c.Request.WithContext(telemetry.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestIDFromContext fetches the request ID stored by RequestID middleware.
func RequestIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

// Client IDs end up in log lines, so only a conservative charset is kept.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
