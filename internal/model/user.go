package model

import (
	"fmt"
	"time"
)

// User represents an authentication user.
type User struct {
	ID            string     `json:"id" db:"id"`
	Username      string     `json:"username" db:"username"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Role          string     `json:"role" db:"role"`
	MakerspaceIDs []string   `json:"makerspace_ids" db:"-"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Roles.
const (
	RoleSuperAdmin      = "super_admin"
	RoleAdmin           = "admin"
	RoleMakerspaceAdmin = "makerspace_admin"
	RoleMember          = "member"
	RoleViewer          = "viewer"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin, RoleMakerspaceAdmin, RoleMember, RoleViewer:
		return true
	}
	return false
}

// MinPasswordLength is the shortest password accepted for an account.
const MinPasswordLength = 8

// ValidatePassword checks password strength rules.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID        string
	UserName      string
	Role          string
	MakerspaceIDs []string
}

// InMakerspace reports whether id is one of the actor's assigned makerspaces.
func (a Actor) InMakerspace(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range a.MakerspaceIDs {
		if m == id {
			return true
		}
	}
	return false
}
