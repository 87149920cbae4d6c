package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/response"
)

// RequireRoles lets the request through only when the operator holds one of roles.
// It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role not permitted for this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Staff covers every role that may run the circulation desk.
func Staff() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleLibrarian)
}

func AdminOnly() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin)
}
