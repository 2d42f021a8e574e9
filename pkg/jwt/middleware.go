package jwt

import (
	"strings"

	"whatsmoney/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	// ContextUserIDKey is the gin context key holding the authenticated user id
	ContextUserIDKey = "userId"
	// ContextRoleKey is the gin context key holding the actor role
	ContextRoleKey = "userRole"
)

// AuthMiddleware verifies the bearer token and stores the actor identity in
// the request context. Core operations receive the id explicitly; nothing
// below the transport layer reads the session.
func AuthMiddleware(service *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			// SSE and WebSocket clients cannot always set headers
			if token := c.Query("token"); token != "" {
				header = "Bearer " + token
			}
		}

		if !strings.HasPrefix(header, "Bearer ") {
			c.Error(errors.NewUnauthorizedError("missing bearer token"))
			c.Abort()
			return
		}

		claims, err := service.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.Error(errors.NewUnauthorizedError("invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// ActorID returns the authenticated user id from the request context
func ActorID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
