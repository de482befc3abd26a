package model

import (
	"slices"
	"time"
)

// Role is a capability granted to a user. A user may hold several roles at
// once; the set is stored alongside the user and copied into access tokens.
type Role string

const (
	RoleUser      Role = "USER"
	RoleOrganizer Role = "ORGANIZER"
	RoleAdmin     Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user record as stored in the `users`
// table. PasswordHash never leaves the service; the json tag hides it.
//
// Fields:
//
//	ID           – UUID primary key.
//	Name         – display name.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hash of the password.
//	Roles        – granted roles (at least USER for self-registered users).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasRole reports whether the user holds role r.
func (u *User) HasRole(r Role) bool { return slices.Contains(u.Roles, r) }

// Actor is the already-authenticated identity on whose behalf an operation
// runs. The zero Actor is anonymous.
type Actor struct {
	UserID string
	Email  string
	Roles  []Role
}

// Authenticated reports whether the actor carries a user identity.
func (a Actor) Authenticated() bool { return a.UserID != "" }

// HasAnyRole reports whether the actor holds at least one of roles.
func (a Actor) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if slices.Contains(a.Roles, r) {
			return true
		}
	}
	return false
}

// IsAdmin is shorthand for HasAnyRole(RoleAdmin).
func (a Actor) IsAdmin() bool { return a.HasAnyRole(RoleAdmin) }
