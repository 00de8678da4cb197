package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/shared/telemetry"
)

// Context keys handlers set so the request log can carry them.
const (
	ContractIDKey       = "contractId"
	RunIDKey            = "runId"
	StatusTransitionKey = "statusTransition"
)

// Logging emits one structured line per request. Preflights and the
// metrics scrape are skipped.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"route":       c.FullPath(),
			"path":        c.Request.URL.Path,
			"status":      status,
			"bytes_out":   c.Writer.Size(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"user_id":     OwnerIDFromContext(c),
			"is_guest":    IsGuest(c),
			"client_ip":   c.ClientIP(),
		}
		for field, key := range map[string]string{
			"contract_id":       ContractIDKey,
			"run_id":            RunIDKey,
			"status_transition": StatusTransitionKey,
		} {
			if v := c.GetString(key); v != "" {
				fields[field] = v
			}
		}
		if status >= http.StatusInternalServerError {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
