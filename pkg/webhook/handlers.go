package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// RegisterRoutes mounts the external system administration endpoints on r,
// all wrapped with admin (which may be nil).
func RegisterRoutes(r chi.Router, store *SystemStore, b *Broadcaster, admin func(http.Handler) http.Handler) {
	r.Route("/systems", func(r chi.Router) {
		if admin != nil {
			r.Use(admin)
		}
		r.Get("/", listSystemsHandler(store))
		r.Post("/", createSystemHandler(store))
		r.Post("/broadcast-test", broadcastTestHandler(store, b))
		r.Get("/{id}", getSystemHandler(store))
		r.Patch("/{id}", updateSystemHandler(store))
		r.Delete("/{id}", deleteSystemHandler(store))
		r.Post("/{id}/rotate-secret", rotateSecretHandler(store))
		r.Get("/{id}/receipts", listReceiptsHandler(store))
	})
}

func listSystemsHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := store.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]System, len(recs))
		for i := range recs {
			out[i] = ToSystem(&recs[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"systems": out})
	}
}

func createSystemHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in CreateSystemInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid request body: %v", err))
			return
		}
		rec, err := store.Create(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, SystemWithSecret{System: ToSystem(rec), Secret: rec.Secret})
	}
}

func getSystemHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rec, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeError(w, apierr.NotFound("system", id))
			return
		}
		writeJSON(w, http.StatusOK, ToSystem(rec))
	}
}

func updateSystemHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in UpdateSystemInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid request body: %v", err))
			return
		}
		rec, err := store.Update(r.Context(), chi.URLParam(r, "id"), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToSystem(rec))
	}
}

func deleteSystemHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func rotateSecretHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := store.RotateSecret(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SystemWithSecret{System: ToSystem(rec), Secret: rec.Secret})
	}
}

func listReceiptsHandler(store *SystemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 {
				limit = min(v, 500)
			}
		}
		recs, err := store.ListReceipts(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"receipts": recs})
	}
}

type broadcastTestRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// broadcastTestHandler sends a caller-supplied event to every active system
// and returns the delivery summary.
func broadcastTestHandler(store *SystemStore, b *Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body broadcastTestRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid request body: %v", err))
			return
		}
		body.Event = strings.TrimSpace(body.Event)
		if body.Event == "" {
			body.Event = "registry.test"
		}
		var payload any = map[string]any{}
		if len(body.Data) > 0 {
			payload = body.Data
		}
		summary, err := b.BroadcastActive(r.Context(), store, body.Event, payload)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
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
		slog.Default().Error("webhook admin request failed", "error", err)
	}
	writeJSON(w, status, apierr.Body(err))
}
