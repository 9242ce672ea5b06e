package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role is the principal's role in its organization.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleUser         Role = "user"
	RoleRewardsUser  Role = "rewards_user"
	RolePendingAdmin Role = "pending_admin"
)

// ParseRole returns the role named by s or an error for anything outside the closed set.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleUser, RoleRewardsUser, RolePendingAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// UserStatus is the verification state of a user account.
type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusVerified UserStatus = "verified"
	StatusInvited  UserStatus = "invited"
)

// ParseUserStatus returns the status named by s or an error for anything outside the closed set.
func ParseUserStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case StatusPending, StatusVerified, StatusInvited:
		return UserStatus(s), nil
	}
	return "", fmt.Errorf("unknown user status %q", s)
}

// CanLogin reports whether the status allows password login.
func (s UserStatus) CanLogin() bool {
	switch s {
	case StatusVerified:
		return true
	case StatusPending, StatusInvited:
		return false
	}
	return false
}

// User is a principal.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	Password          string     `json:"-"`
	FullName          string     `json:"fullName"`
	Phone             string     `json:"phone"`
	Role              Role       `json:"role"`
	Status            UserStatus `json:"status"`
	OrganizationID    *uuid.UUID `json:"organizationId,omitempty"`
	VerificationToken *string    `json:"-"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"fullName"`
	Phone          string     `json:"phone"`
	Role           Role       `json:"role"`
	Status         UserStatus `json:"status"`
	OrganizationID *uuid.UUID `json:"organizationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:             u.ID,
		Email:          u.Email,
		FullName:       u.FullName,
		Phone:          u.Phone,
		Role:           u.Role,
		Status:         u.Status,
		OrganizationID: u.OrganizationID,
		CreatedAt:      u.CreatedAt,
	}
}
