package models

import (
	"time"

	"github.com/google/uuid"
)

// Default operating hours for a new organization.
const (
	DefaultOpenTime  Clock = 9 * 60
	DefaultCloseTime Clock = 21 * 60
)

// Organization is a tenant. Every tenant-scoped row carries exactly one organization_id.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	APIKey    string    `json:"apiKey,omitempty"`
	OpenTime  Clock     `json:"openTime"`
	CloseTime Clock     `json:"closeTime"`
	Timezone  string    `json:"timezone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public returns a copy without the API key.
func (o Organization) Public() Organization {
	o.APIKey = ""
	return o
}
