package model

import "time"

// User roles accepted in JWT claims.
const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// User is an account able to make reservations.  Only the bcrypt hash
// of the password is ever stored.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email (unique)
	Name         string    // users.name
	PasswordHash string    // users.password_hash
	Role         string    // users.role (CUSTOMER | ADMIN)
	CreatedAt    time.Time // users.created_at
}
