package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
	"github.com/noah-isme/library-api/pkg/response"
)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, r := range allowed {
		allowedRoles[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireStaff admits both staff roles.
func RequireStaff() gin.HandlerFunc {
	return RBAC(models.RoleAdmin, models.RoleLibrarian)
}

// RequireAdmin admits administrators only.
func RequireAdmin() gin.HandlerFunc {
	return RBAC(models.RoleAdmin)
}
