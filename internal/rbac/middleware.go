package rbac

import (
	"net/http"

	"erlessed-biometric/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole admits callers holding one of allowed. admin always passes.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	set := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		set[r] = struct{}{}
	}
	return guard(func(role string) bool {
		_, ok := set[role]
		return ok || IsAdmin(role)
	})
}

// RequireCapability admits callers whose role grants capability.
func RequireCapability(capability Capability) gin.HandlerFunc {
	return guard(func(role string) bool { return Can(role, capability) })
}

// guard expects auth.RequireAccessToken upstream: no role is 401, a refused role 403.
func guard(allow func(role string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !allow(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
