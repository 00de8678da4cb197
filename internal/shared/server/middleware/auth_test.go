package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/shared/auth"
)

func authRouter(t *testing.T) (*gin.Engine, *auth.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := auth.NewTokens("test-secret", "dev")
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	router := gin.New()
	router.Use(Auth(tokens))
	router.GET("/api/v1/contracts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"owner": OwnerIDFromContext(c), "guest": IsGuest(c)})
	})
	router.OPTIONS("/api/v1/contracts", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router, tokens
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	router, _ := authRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/contracts", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthIdentities(t *testing.T) {
	router, tokens := authRouter(t)
	signed, err := tokens.Sign("user-7", "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tests := []struct {
		name   string
		header string
		value  string
		status int
		body   string
	}{
		{"bearer", "Authorization", "Bearer " + signed, http.StatusOK, `{"guest":false,"owner":"user-7"}`},
		{"guest", "X-Guest-Id", "abc", http.StatusOK, `{"guest":true,"owner":"guest:abc"}`},
		{"bad token", "Authorization", "Bearer nope", http.StatusUnauthorized, ""},
		{"wrong scheme", "Authorization", "Basic abc", http.StatusUnauthorized, ""},
		{"none", "", "", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/contracts", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			if resp.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.Code)
			}
			if tt.body != "" && resp.Body.String() != tt.body {
				t.Fatalf("unexpected body %s", resp.Body.String())
			}
		})
	}
}
