package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/openhfr/facility-registry/pkg/authz"
)

// Options controls the audit middleware.
type Options struct {
	Enabled   bool
	LogDenied bool // record calls rejected with 403
}

// Middleware records an EventRecord for every mutating call once the
// handler has written its response. Audit writes are best effort and never
// change the response.
func Middleware(store *Store, opts Options, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if !opts.Enabled || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isAuditable(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			outcome := outcomeFromStatus(status)
			if outcome == OutcomeDenied && !opts.LogDenied {
				return
			}

			ctx := r.Context()
			actor, role := authz.Anonymous, ""
			if id, ok := authz.IdentityFromContext(ctx); ok {
				actor, role = id.User, id.Role
			}
			resourceType, resourceID, pathAction := describePath(r.URL.Path)

			event := &EventRecord{
				ID:           uuid.NewString(),
				RequestID:    middleware.GetReqID(ctx),
				Actor:        actor,
				Role:         role,
				Method:       r.Method,
				Path:         r.URL.Path,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Action:       actionVerb(r.Method, pathAction),
				Outcome:      outcome,
				StatusCode:   status,
				DurationMS:   time.Since(start).Milliseconds(),
				CreatedAt:    start,
			}

			// The request context may already be cancelled by a disconnecting client.
			if err := store.Append(context.WithoutCancel(ctx), event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", event.RequestID)
			}
		})
	}
}
