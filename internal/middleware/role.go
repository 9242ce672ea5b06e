package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles. It must run after Session.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			response.Abort(c, apperr.Unauthenticated("missing user context"))
			return
		}
		if err := auth.RequireRole(p, roles...); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}

// RequireOrganization rejects principals that do not yet belong to an organization.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			response.Abort(c, apperr.Unauthenticated("missing user context"))
			return
		}
		if _, err := p.Organization(); err != nil {
			response.Abort(c, err)
			return
		}
		c.Next()
	}
}
