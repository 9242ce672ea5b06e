package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/tablehost/backend/internal/models"
	"github.com/tablehost/backend/pkg/response"
)

const (
	// HeaderAPIKey carries an organization's API key on public endpoints.
	HeaderAPIKey = "apikey"
	// HeaderOrganizationID names the organization the API key belongs to.
	HeaderOrganizationID = "organizationid"
	// ContextOrganization holds the *models.Organization resolved from an API key.
	ContextOrganization = "api_organization"
)

// APIKeyValidator checks an organization id / API key pair.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, orgID, apiKey string) (*models.Organization, error)
}

// APIKey returns a middleware that authenticates public callers by the apikey and organizationid headers.
func APIKey(validator APIKeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := validator.ValidateAPIKey(c.Request.Context(), c.GetHeader(HeaderOrganizationID), c.GetHeader(HeaderAPIKey))
		if err != nil {
			response.Abort(c, err)
			return
		}
		c.Set(ContextOrganization, org)
		c.Next()
	}
}

// OrganizationFrom returns the organization resolved by APIKey.
func OrganizationFrom(c *gin.Context) (*models.Organization, bool) {
	v, ok := c.Get(ContextOrganization)
	if !ok {
		return nil, false
	}
	org, ok := v.(*models.Organization)
	return org, ok
}
