package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"compliance-backend/internal/shared/auth"
	"compliance-backend/internal/shared/server/respond"
)

const (
	ownerIDKey = "userId"
	isGuestKey = "isGuest"
)

// Auth accepts a bearer token or an X-Guest-Id header and stores the owner
// id in the context. Guests are namespaced as guest:<id>.
func Auth(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" || tokens == nil {
				respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
				return
			}
			claims, err := tokens.Verify(strings.TrimSpace(token))
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
				return
			}
			c.Set(ownerIDKey, claims.Subject)
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		guestID := strings.TrimSpace(c.GetHeader("X-Guest-Id"))
		if guestID == "" {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "Missing identity", nil)
			return
		}
		c.Set(ownerIDKey, "guest:"+guestID)
		c.Set(isGuestKey, true)
		c.Next()
	}
}

// OwnerIDFromContext fetches the owner id set by Auth.
func OwnerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(ownerIDKey)
}

// IsGuest reports whether the caller identified with a guest header.
func IsGuest(c *gin.Context) bool {
	return c != nil && c.GetBool(isGuestKey)
}
