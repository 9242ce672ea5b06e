package auth

import (
	"github.com/google/uuid"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/internal/models"
)

// Principal is the authenticated actor behind a request.
type Principal struct {
	UserID         uuid.UUID
	Email          string
	Role           models.Role
	Status         models.UserStatus
	OrganizationID *uuid.UUID
}

// PrincipalFromUser builds the principal a fresh token should describe.
func PrincipalFromUser(u *models.User) Principal {
	return Principal{
		UserID:         u.ID,
		Email:          u.Email,
		Role:           u.Role,
		Status:         u.Status,
		OrganizationID: u.OrganizationID,
	}
}

// Organization returns the principal's tenant, or Forbidden when it has none yet.
func (p Principal) Organization() (uuid.UUID, error) {
	if p.OrganizationID == nil || *p.OrganizationID == uuid.Nil {
		return uuid.Nil, apperr.Forbidden("no organization associated with this account")
	}
	return *p.OrganizationID, nil
}

// RequireRole fails with Forbidden unless the principal holds one of the allowed roles.
func RequireRole(p Principal, allowed ...models.Role) error {
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return apperr.Forbidden("insufficient permissions")
}
