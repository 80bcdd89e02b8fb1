// Package authz provides the caller identity and role checks for the
// registry API. Authentication happens upstream; the fronting proxy passes
// the caller in trusted headers.
package authz

import "context"

// Resource names.
const (
	ResourceHierarchy  = "hierarchy"
	ResourceRequests   = "requests"
	ResourceFacilities = "facilities"
	ResourceSystems    = "systems"
	ResourceAudit      = "audit"
)

// Verb names.
const (
	VerbGet     = "get"
	VerbList    = "list"
	VerbCreate  = "create"
	VerbUpdate  = "update"
	VerbDelete  = "delete"
	VerbApprove = "approve"
)

// AuthzRequest represents an authorization check.
type AuthzRequest struct {
	User     string
	Role     string
	Resource string
	Verb     string
}

// Authorizer checks whether a caller is authorized to perform an action.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) (bool, error)
}
