package audit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// RegisterRoutes mounts the audit read API on r. guard, when non-nil, wraps
// every route.
func RegisterRoutes(r chi.Router, store *Store, guard func(http.Handler) http.Handler) {
	r.Route("/audit", func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Get("/events", listEventsHandler(store))
		r.Get("/events/{id}", getEventHandler(store))
	})
}

// listEventsHandler handles GET /audit/events.
// Query params: actor, resourceType, outcome, since (RFC3339), pageSize, pageToken
func listEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := Filter{
			Actor:        q.Get("actor"),
			ResourceType: q.Get("resourceType"),
			Outcome:      q.Get("outcome"),
			PageToken:    q.Get("pageToken"),
		}
		if ps := q.Get("pageSize"); ps != "" {
			v, err := strconv.Atoi(ps)
			if err != nil || v <= 0 {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid pageSize %q", ps))
				return
			}
			f.PageSize = v
		}
		if since := q.Get("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid since %q", since))
				return
			}
			f.Since = t
		}

		records, next, total, err := store.List(r.Context(), f)
		if errors.Is(err, ErrInvalidPageToken) {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid pageToken"))
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		list := EventList{Events: make([]Event, len(records)), NextPageToken: next, TotalSize: total}
		for i, rec := range records {
			list.Events[i] = toEvent(rec)
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func getEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeError(w, apierr.NotFound("audit event", id))
			return
		}
		writeJSON(w, http.StatusOK, toEvent(*rec))
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Default().Error("audit request failed", "error", err)
	}
	writeJSON(w, status, apierr.Body(err))
}
