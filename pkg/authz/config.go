package authz

import "fmt"

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables authorization checks for local development.
	AuthzModeNone AuthzMode = "none"
	// AuthzModeRoles checks the caller role against configured role lists.
	AuthzModeRoles AuthzMode = "roles"
)

// New builds the Authorizer for mode.
func New(mode AuthzMode, adminRoles, approverRoles []string) (Authorizer, error) {
	switch mode {
	case AuthzModeNone:
		return &NoopAuthorizer{}, nil
	case AuthzModeRoles, "":
		return NewRoleAuthorizer(adminRoles, approverRoles), nil
	default:
		return nil, fmt.Errorf("unknown authorization mode %q", mode)
	}
}
