package auth

import "errors"

// Role represents an authorisation tier for API callers.
type Role string

const (
	// RoleViewer can inspect the link but not publish through it.
	RoleViewer Role = "viewer"

	// RoleOperator can inspect the link and publish.
	RoleOperator Role = "operator"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole returns true if r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors.
var (
	ErrNoSecret     = errors.New("auth: signing secret is empty")
	ErrNoSubject    = errors.New("auth: subject is empty")
	ErrInvalidRole  = errors.New("auth: unknown role")
	ErrTokenInvalid = errors.New("auth: invalid token")
)
