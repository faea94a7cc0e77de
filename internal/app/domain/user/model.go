package user

import "time"

// Role distinguishes administrators from regular applicants.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleApplicant Role = "applicant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleApplicant
}

// User represents a registered account. PasswordHash never leaves the
// storage and services layers; API responses use Public().
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Public is the user shape safe to return to clients.
type Public struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Public strips credential material from the record.
func (u User) Public() Public {
	return Public{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
