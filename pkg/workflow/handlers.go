package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/authz"
)

// Guards are the middlewares protecting request operations. Nil entries
// leave the route open.
type Guards struct {
	Submit  func(http.Handler) http.Handler
	Approve func(http.Handler) http.Handler
	Delete  func(http.Handler) http.Handler
}

// RegisterRoutes mounts the request endpoints on r.
func RegisterRoutes(r chi.Router, svc *Service, g Guards) {
	guarded := func(mw func(http.Handler) http.Handler) chi.Router {
		if mw == nil {
			return r
		}
		return r.With(mw)
	}

	guarded(g.Submit).Post("/requests", submitHandler(svc))
	r.Get("/requests", listRequestsHandler(svc))
	r.Get("/requests/{id}", getRequestHandler(svc))
	r.Get("/requests/{id}/history", historyHandler(svc))
	guarded(g.Approve).Post("/requests/{id}/approve", approveHandler(svc))
	guarded(g.Approve).Post("/requests/{id}/reject", rejectHandler(svc))
	guarded(g.Delete).Delete("/requests/{id}", deleteRequestHandler(svc))
}

type decisionBody struct {
	Comments string `json:"comments"`
}

func callerFrom(r *http.Request) Caller {
	id, _ := authz.IdentityFromContext(r.Context())
	return Caller{UserID: id.User, Role: id.Role}
}

func submitHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in SubmitInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid request body: %v", err))
			return
		}
		rec, err := svc.Submit(r.Context(), callerFrom(r), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ToFacilityRequest(rec))
	}
}

// listRequestsHandler serves
// GET /requests?status=&type=&submittedBy=&districtId=&pageSize=&pageToken=
func listRequestsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := ListFilter{
			SubmittedBy: q.Get("submittedBy"),
			PageToken:   q.Get("pageToken"),
		}
		if v := q.Get("status"); v != "" {
			st, err := ParseStatus(v)
			if err != nil {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "%v", err))
				return
			}
			f.Status = st
		}
		if v := q.Get("type"); v != "" {
			rt, err := ParseRequestType(v)
			if err != nil {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "%v", err))
				return
			}
			f.RequestType = rt
		}
		if v := q.Get("districtId"); v != "" {
			id, err := strconv.ParseUint(v, 10, 0)
			if err != nil {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid districtId %q", v))
				return
			}
			d := uint(id)
			f.DistrictID = &d
		}
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				f.PageSize = v
			}
		}

		recs, next, total, err := svc.List(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		out := FacilityRequestList{
			Requests:      make([]FacilityRequest, len(recs)),
			NextPageToken: next,
			TotalSize:     total,
		}
		for i := range recs {
			out.Requests[i] = ToFacilityRequest(&recs[i])
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToFacilityRequest(rec))
	}
}

func historyHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := svc.History(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": toStatusEntries(recs)})
	}
}

func approveHandler(svc *Service) http.HandlerFunc {
	return decisionHandler(svc.Approve)
}

func rejectHandler(svc *Service) http.HandlerFunc {
	return decisionHandler(svc.Reject)
}

type decideFunc = func(ctx context.Context, id string, caller Caller, comments string) (*FacilityRequestRecord, error)

func decisionHandler(decide decideFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body decisionBody
		// The body is optional.
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid request body: %v", err))
			return
		}
		rec, err := decide(r.Context(), chi.URLParam(r, "id"), callerFrom(r), body.Comments)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToFacilityRequest(rec))
	}
}

func deleteRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes the JSON error body for err.
func writeError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		slog.Default().Error("request workflow call failed", "error", err)
	}
	writeJSON(w, status, apierr.Body(err))
}
