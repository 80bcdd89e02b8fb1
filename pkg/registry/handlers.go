package registry

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// RegisterRoutes mounts the read-only facility endpoints on r.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Get("/facilities", listFacilitiesHandler(store))
	r.Get("/facilities/{identifier}", getFacilityHandler(store))
	r.Get("/facilities/by-unit/{facilityId}", getFacilityByUnitHandler(store))
}

func listFacilitiesHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := Filter{Name: q.Get("name"), PageSize: 20}
		for key, dst := range map[string]**uint{
			"regionId":    &f.RegionID,
			"districtId":  &f.DistrictID,
			"subcountyId": &f.SubcountyID,
		} {
			raw := q.Get(key)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseUint(raw, 10, 0)
			if err != nil {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid %s %q", key, raw))
				return
			}
			u := uint(v)
			*dst = &u
		}
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				f.PageSize = min(v, 100)
			}
		}
		if tok := q.Get("pageToken"); tok != "" {
			after, err := strconv.ParseUint(tok, 10, 0)
			if err != nil {
				writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid pageToken"))
				return
			}
			f.AfterID = uint(after)
		}

		recs, next, err := store.List(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		out := FacilityList{Facilities: make([]Facility, len(recs))}
		for i := range recs {
			out.Facilities[i] = ToFacility(&recs[i])
		}
		if next > 0 {
			out.NextPageToken = strconv.FormatUint(uint64(next), 10)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getFacilityHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identifier := chi.URLParam(r, "identifier")
		rec, err := store.GetByIdentifier(r.Context(), identifier)
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeError(w, apierr.NotFound("facility", identifier))
			return
		}
		writeJSON(w, http.StatusOK, ToFacility(rec))
	}
}

func getFacilityByUnitHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "facilityId")
		id, err := strconv.ParseUint(raw, 10, 0)
		if err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid facility id %q", raw))
			return
		}
		rec, err := store.GetByFacilityID(r.Context(), uint(id))
		if err != nil {
			writeError(w, err)
			return
		}
		if rec == nil {
			writeError(w, apierr.NotFound("facility", id))
			return
		}
		writeJSON(w, http.StatusOK, ToFacility(rec))
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
		slog.Default().Error("registry request failed", "error", err)
	}
	writeJSON(w, status, apierr.Body(err))
}
