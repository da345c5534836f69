package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tidechat/tidechat/internal/auth"
	"github.com/tidechat/tidechat/pkg/response"
)

const (
	userIDKey    = "user_id"
	usernameKey  = "username"
	bearerPrefix = "Bearer "
)

// RequireAuth validates the bearer token and stores the principal in
// the gin context.
func RequireAuth(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		if !strings.HasPrefix(header, bearerPrefix) {
			response.Unauthorized(c, "invalid authorization format")
			c.Abort()
			return
		}

		principal, err := resolver.Verify(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set(userIDKey, principal.UserID)
		c.Set(usernameKey, principal.Username)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	if id, ok := c.Get(userIDKey); ok {
		return id.(string)
	}
	return ""
}
