package authz

import (
	"context"
	"strings"
)

// RoleAuthorizer grants access by caller role.
//
//   - reads of the hierarchy, requests and facilities are open to everyone,
//   - any identified caller may file a request,
//   - approving or rejecting a request needs an approver role,
//   - everything else needs an admin role.
//
// Admin roles pass every check.
type RoleAuthorizer struct {
	admin    map[string]struct{}
	approver map[string]struct{}
}

// NewRoleAuthorizer creates a RoleAuthorizer.
func NewRoleAuthorizer(adminRoles, approverRoles []string) *RoleAuthorizer {
	return &RoleAuthorizer{admin: roleSet(adminRoles), approver: roleSet(approverRoles)}
}

// Authorize implements Authorizer.
func (a *RoleAuthorizer) Authorize(_ context.Context, req AuthzRequest) (bool, error) {
	role := strings.ToLower(req.Role)
	if _, ok := a.admin[role]; ok && role != "" {
		return true, nil
	}

	switch req.Resource {
	case ResourceHierarchy, ResourceRequests, ResourceFacilities:
		if req.Verb == VerbGet || req.Verb == VerbList {
			return true, nil
		}
	}
	if req.Resource != ResourceRequests {
		return false, nil
	}
	switch req.Verb {
	case VerbCreate:
		return req.User != "" && req.User != Anonymous, nil
	case VerbApprove:
		_, ok := a.approver[role]
		return ok && role != "", nil
	}
	return false, nil
}

func roleSet(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return set
}
