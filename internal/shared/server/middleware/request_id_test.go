package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"compliance-backend/internal/shared/telemetry"
)

func TestRequestIDPropagatesToRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	var fromCtx string
	r.GET("/x", func(c *gin.Context) {
		fromCtx = telemetry.RequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name   string
		header string
		keep   bool
	}{
		{"client id kept", "req-42.a:b", true},
		{"missing id minted", "", false},
		{"unsafe id replaced", "bad id\nwith newline", false},
		{"oversized id replaced", strings.Repeat("a", maxRequestIDLen+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set(RequestIDHeader, tc.header)
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			got := resp.Header().Get(RequestIDHeader)
			if got != fromCtx {
				t.Fatalf("header %q and context %q differ", got, fromCtx)
			}
			if tc.keep {
				if got != tc.header {
					t.Fatalf("expected %q, got %q", tc.header, got)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Fatalf("expected minted uuid, got %q", got)
			}
		})
	}
}
