package model

import "time"

// Roles carried in the users.role column and the JWT "role" claim.
const (
	RoleCustomer = "CUSTOMER"
	RoleStaff    = "STAFF"
)

// User represents an application user record as stored in the
// `users` table.  Staff members validate and reject reservations;
// customers book them.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – CUSTOMER or STAFF.
//	IsActive     – whether the account is active.
type User struct {
	ID           uint64    `db:"id"`            // users.id
	Email        string    `db:"email"`         // users.email
	PasswordHash string    `db:"password_hash"` // users.password_hash
	Role         string    `db:"role"`          // users.role
	IsActive     bool      `db:"is_active"`     // users.is_active
	CreatedAt    time.Time `db:"created_at"`    // users.created_at
	UpdatedAt    time.Time `db:"updated_at"`    // users.updated_at
}

// Identity is the caller of a reservation operation.
type Identity struct {
	ID    uint64
	Staff bool
}

// Identity returns the reservation-side view of u.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Staff: u.Role == RoleStaff}
}
