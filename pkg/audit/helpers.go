package audit

import (
	"net/http"
	"strings"
)

const apiPrefix = "/api/v1/"

// Second path segments that name an operation rather than a resource id.
var collectionActions = map[string]bool{
	"order":          true,
	"rebuild":        true,
	"broadcast-test": true,
}

// describePath splits an API path into resource type, resource id and the
// trailing action segment, if any.
//
//	/api/v1/units/12/move        -> units, 12, move
//	/api/v1/levels/order         -> levels, "", order
//	/api/v1/requests             -> requests, "", ""
func describePath(path string) (resourceType, resourceID, action string) {
	rest, ok := strings.CutPrefix(path, apiPrefix)
	if !ok {
		return "", "", ""
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	resourceType = parts[0]
	if len(parts) < 2 {
		return resourceType, "", ""
	}
	if collectionActions[parts[1]] {
		return resourceType, "", parts[1]
	}
	resourceID = parts[1]
	if len(parts) > 2 {
		action = parts[len(parts)-1]
	}
	return resourceType, resourceID, action
}

// actionVerb names what the call did. An explicit action segment wins over
// the method.
func actionVerb(method, pathAction string) string {
	if pathAction != "" {
		return pathAction
	}
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isAuditable reports whether a call mutates state. The inbound webhook is
// authenticated by signature and keeps its own receipts.
func isAuditable(method, path string) bool {
	if isHealthEndpoint(path) || path == apiPrefix+"webhook" {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz", "/metrics":
		return true
	}
	return false
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
