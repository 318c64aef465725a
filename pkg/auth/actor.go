package auth

import (
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/google/uuid"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// IsStaff reports whether the actor holds the redemption capability.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

// IsZero reports whether no identity is attached.
func (a Actor) IsZero() bool {
	return a.UserID == uuid.Nil
}
