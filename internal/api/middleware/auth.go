// Package middleware provides HTTP middleware for the Gin router.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aidmap/internal/domain/entities"
	"aidmap/internal/identity"
)

// identityKey is the gin context key under which Auth stores the resolved
// identity for downstream handlers.
const identityKey = "identity"

// Auth resolves "Authorization: Bearer <session-token>" against the
// identity service and aborts unauthenticated requests. Mutating profile
// operations require this; discovery reads do not.
func Auth(ids *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		ident := ids.Current(token)
		if ident == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
			c.Abort()
			return
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// GetIdentity retrieves the identity stored by Auth. Returns nil when the
// request went through an unauthenticated route.
func GetIdentity(c *gin.Context) *entities.Identity {
	val, exists := c.Get(identityKey)
	if !exists {
		return nil
	}
	ident, _ := val.(*entities.Identity)
	return ident
}

// BearerToken extracts the session token from the Authorization header, or
// "" when the request carries none.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
