package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleCustomer = "customer"
	RoleGuest    = "guest"
	RoleStaff    = "staff"
	RoleAdmin    = "admin"
)

// User is the read model consumed for ownership checks and notification addressing
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Caller is the authenticated identity behind a request
type Caller struct {
	UserID uuid.UUID
	Role   string
}

// IsStaff reports whether the caller may use the admin override surface
func (c Caller) IsStaff() bool {
	return c.Role == RoleStaff || c.Role == RoleAdmin
}

// IsAnonymous reports whether no identity was presented
func (c Caller) IsAnonymous() bool {
	return c.UserID == uuid.Nil
}

// GuestContact identifies a shopper checking out without an account
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}
