package auth

import (
	"github.com/google/uuid"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
)

// Actor is the authenticated caller. Services receive it explicitly instead
// of reading session state.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// SystemActor is used by background jobs acting with admin rights.
var SystemActor = Actor{UserID: uuid.Nil, Role: enums.RoleAdmin}

// IsAdmin reports whether the actor carries the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Owns reports whether the actor is the given user.
func (a Actor) Owns(userID uuid.UUID) bool {
	return a.UserID != uuid.Nil && a.UserID == userID
}

// Valid reports whether the actor can be authorized at all.
func (a Actor) Valid() bool {
	if !a.Role.IsValid() {
		return false
	}
	return a.UserID != uuid.Nil || a.IsAdmin()
}
