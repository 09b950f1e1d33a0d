package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxUserID   = "user_id"
	CtxUserType = "user_type"
)

// WithIdentity resolves the caller from the token when one is present
// and stores it in the request context. It never rejects; gated routes
// add RequireUser on top.
func WithIdentity(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token != "" {
			if id, err := m.Parse(token); err == nil {
				c.Set(CtxUserID, id.UserID)
				c.Set(CtxUserType, id.UserType)
			}
		}
		c.Next()
	}
}

// RequireUser rejects requests whose caller identity could not be
// resolved.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing or invalid token"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID extracts the authenticated caller's id from the Gin context.
func UserID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxUserID))
}

// extractToken reads the X-Token header or the Bearer token from the
// Authorization header.
func extractToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.GetHeader("X-Token")); t != "" {
		return t
	}
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.HasPrefix(bearerToken, "Bearer ") {
		return bearerToken[7:]
	}
	return ""
}
