package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// ActionTokenHeader carries the action token for privileged follow-up calls.
const ActionTokenHeader = "X-Action-Token"

// RequireAccessToken admits requests bearing a valid access token and puts the caller
// identity on the request context. Role checks live in internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), claims.UserID, claims.Role))
		c.Next()
	}
}

// RequireActionToken demands a valid action token for action, issued to the same user
// that holds the access token. Must run after RequireAccessToken.
func RequireActionToken(m *Manager, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := strings.TrimSpace(c.GetHeader(ActionTokenHeader))
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "action token required"})
			return
		}
		claims, err := m.VerifyActionToken(tok, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrInvalidToken.Error()})
			return
		}
		uid, _ := UserID(c.Request.Context())
		if claims.Action != action || claims.UserID != uid {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "action token does not authorize this request"})
			return
		}

		c.Request = c.Request.WithContext(WithAuthorizedAction(c.Request.Context(), action))
		c.Next()
	}
}
