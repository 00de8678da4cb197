package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/shared/server/respond"
	"compliance-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 with the standard error body.
// The run or contract the handler was working on is logged with the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
			}
			if id := c.GetString(RunIDKey); id != "" {
				fields["run_id"] = id
			}
			if id := c.GetString(ContractIDKey); id != "" {
				fields["contract_id"] = id
			}
			telemetry.Error("http.panic", fields)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "Unexpected server error", nil)
		}()
		c.Next()
	}
}
