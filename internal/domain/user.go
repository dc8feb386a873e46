package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role type to distinguish between user roles
type Role string

// Define constants for roles
const (
	RoleMember     Role = "member"
	RoleSubscriber Role = "subscriber"
	RoleTrainer    Role = "trainer"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleSubscriber, RoleTrainer, RoleAdmin:
		return true
	}
	return false
}

// IsStaff is true for roles that manage terms.
func (r Role) IsStaff() bool {
	return r == RoleTrainer || r == RoleAdmin
}

// User represents a studio account (member, subscriber, trainer or administrator).
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FirstName    string             `bson:"firstName" json:"firstName"`
	LastName     string             `bson:"lastName" json:"lastName"`
	Email        string             `bson:"email" json:"email"`    // Unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	Role         Role               `bson:"role" json:"role"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// DisplayName joins first and last name, skipping empty parts.
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Principal is the authenticated caller as resolved from the bearer token.
type Principal struct {
	ID   primitive.ObjectID
	Role Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanManage reports whether the principal may edit, cancel or delete a term owned by trainerID.
func (p Principal) CanManage(trainerID primitive.ObjectID) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.Role == RoleTrainer && p.ID == trainerID
}
