package models

import "fmt"

// Role is the closed set of account roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

// ParseRole accepts exactly the three known role names.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleStudent, RoleMentor, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// SelfRegistrable reports whether an account with this role may be created
// through public registration. Admins are provisioned out of band.
func (r Role) SelfRegistrable() bool {
	return r == RoleStudent || r == RoleMentor
}

// Dashboard is the landing page for the role.
func (r Role) Dashboard() string {
	return "/" + string(r) + "/dashboard"
}

// RoleSatisfies is the single role check shared by the edge gate and the API
// middleware. Admin satisfies every requirement; otherwise roles must match.
func RoleSatisfies(required, actual Role) bool {
	if !actual.Valid() {
		return false
	}
	return actual == RoleAdmin || actual == required
}

// AnyRoleSatisfies reports whether actual satisfies at least one of required.
func AnyRoleSatisfies(required []Role, actual Role) bool {
	for _, r := range required {
		if RoleSatisfies(r, actual) {
			return true
		}
	}
	return false
}
