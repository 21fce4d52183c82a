package domain

import "time"

// Role defines the access level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the identity principal. Contact identifiers are unique; a user
// may register with email, phone, or both.
type User struct {
	ID                 string
	Name               string
	Email              string
	Phone              string
	Role               Role
	Verified           bool
	VerifiedAt         *time.Time
	OnboardingComplete bool
	CreatedAt          time.Time
}
