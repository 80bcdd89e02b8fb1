package authz

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the fronting auth proxy.
const (
	HeaderUser = "X-Remote-User"
	HeaderRole = "X-Remote-Role"
)

// Anonymous is the user of requests that carry no identity.
const Anonymous = "anonymous"

type identityCtxKey struct{}

// Identity is the caller making a request.
type Identity struct {
	User string
	Role string
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// IdentityMiddleware extracts the caller from the X-Remote-User and
// X-Remote-Role headers. A missing user is Anonymous. Roles are compared
// lower-case.
func IdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := strings.TrimSpace(r.Header.Get(HeaderUser))
			if user == "" {
				user = Anonymous
			}
			role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))

			ctx := WithIdentity(r.Context(), Identity{User: user, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
