package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Input limits shared by reservations and slots. They keep values inside the column types.
const (
	MaxGuests         = 1000
	MaxContactNameLen = 255
)

// ReservationStatus is the lifecycle status of a reservation. Archival is tracked separately.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// ParseReservationStatus accepts pending, confirmed, cancelled and the spelling "canceled".
func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch s {
	case "pending":
		return ReservationPending, nil
	case "confirmed":
		return ReservationConfirmed, nil
	case "cancelled", "canceled":
		return ReservationCancelled, nil
	}
	return "", fmt.Errorf("status must be one of: pending, confirmed, cancelled")
}

// CanTransition reports whether a reservation may move from s to next.
// Same-status updates are allowed; cancelled is terminal.
func (s ReservationStatus) CanTransition(next ReservationStatus) bool {
	switch s {
	case ReservationPending:
		return next == ReservationPending || next == ReservationConfirmed || next == ReservationCancelled
	case ReservationConfirmed:
		return next == ReservationConfirmed || next == ReservationCancelled
	case ReservationCancelled:
		return next == ReservationCancelled
	}
	return false
}

// HoldsCapacity reports whether a reservation in this status counts against slot capacity.
func (s ReservationStatus) HoldsCapacity() bool {
	return s != ReservationCancelled
}

// Reservation is a booking for an organization.
type Reservation struct {
	ID             uuid.UUID         `json:"id"`
	OrganizationID uuid.UUID         `json:"organizationId"`
	UserID         *uuid.UUID        `json:"userId,omitempty"`
	ContactName    string            `json:"contactName"`
	PhoneNumber    string            `json:"phoneNumber"`
	Date           Date              `json:"date"`
	Time           Clock             `json:"time"`
	Guests         int               `json:"guests"`
	Notes          string            `json:"notes,omitempty"`
	Status         ReservationStatus `json:"status"`
	Archived       bool              `json:"archived"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// StartsAt is the reservation's wall-clock start (UTC).
func (r Reservation) StartsAt() time.Time {
	return r.Date.At(r.Time)
}

// Before orders reservations by (date, time).
func (r Reservation) Before(o Reservation) bool {
	if !r.Date.Equal(o.Date.Time) {
		return r.Date.Before(o.Date.Time)
	}
	return r.Time < o.Time
}
