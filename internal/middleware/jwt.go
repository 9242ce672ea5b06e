package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/auth"
	"github.com/tablehost/backend/pkg/response"
)

// Session returns a middleware that validates the session token and stores the Principal.
// The token is read from "Authorization: Bearer <token>", falling back to the session cookie.
func Session(jwtService *auth.JWTService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := sessionToken(c, cookieName)
		if err != nil {
			response.Abort(c, err)
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Abort(c, apperr.Unauthenticated("invalid or expired token"))
			return
		}
		auth.SetPrincipal(c, claims.Principal())
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			return "", apperr.Unauthenticated("invalid authorization header")
		}
		return strings.TrimSpace(parts[1]), nil
	}
	if cookieName != "" {
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			return v, nil
		}
	}
	return "", apperr.Unauthenticated("missing session token")
}
