package models

import (
	"strings"
	"time"
)

// User is the identity record consumed by the auth core.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	Name             string
	Role             Role
	Phone            string
	Bio              string
	Skills           string
	Active           bool
	Verified         bool
	FailedLoginCount int
	LockedUntil      *time.Time
	TokenVersion     int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NormalizeEmail is applied before every lookup and insert so the unique
// constraint is case-insensitive in practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Profile is the public view of a user; it never carries the password hash
// or lockout bookkeeping.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Phone    string `json:"phone,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Skills   string `json:"skills,omitempty"`
	Active   bool   `json:"isActive"`
	Verified bool   `json:"isVerified"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		Phone:    u.Phone,
		Bio:      u.Bio,
		Skills:   u.Skills,
		Active:   u.Active,
		Verified: u.Verified,
	}
}
