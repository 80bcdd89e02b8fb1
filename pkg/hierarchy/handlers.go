package hierarchy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

const (
	defaultUnitPageSize = 100
	maxUnitPageSize     = 500
)

// RegisterRoutes mounts the level and unit endpoints on r. Structural
// mutations are wrapped with admin, which may be nil.
func RegisterRoutes(r chi.Router, m *Manager, admin func(http.Handler) http.Handler) {
	mutate := r
	if admin != nil {
		mutate = r.With(admin)
	}

	r.Get("/levels", listLevelsHandler(m))
	mutate.Post("/levels", createLevelHandler(m))
	mutate.Put("/levels/order", reorderLevelsHandler(m))
	mutate.Patch("/levels/{id}", renameLevelHandler(m))
	mutate.Delete("/levels/{id}", deleteLevelHandler(m))

	r.Get("/units", listUnitsHandler(m))
	mutate.Post("/units", createUnitHandler(m))
	r.Get("/units/{id}", getUnitHandler(m))
	mutate.Patch("/units/{id}", updateUnitHandler(m))
	mutate.Delete("/units/{id}", deleteUnitHandler(m))
	mutate.Post("/units/{id}/move", moveUnitHandler(m))
	r.Get("/units/{id}/children", childrenHandler(m))
	r.Get("/units/{id}/subtree", subtreeHandler(m))
	r.Get("/units/{id}/ancestors", ancestorsHandler(m))

	mutate.Post("/paths/rebuild", rebuildPathsHandler(m))
}

type levelList struct {
	Levels []Level `json:"levels"`
}

func toLevelList(recs []LevelRecord) levelList {
	out := levelList{Levels: make([]Level, len(recs))}
	for i := range recs {
		out.Levels[i] = ToLevel(&recs[i])
	}
	return out
}

func listLevelsHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := m.ListLevels(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLevelList(recs))
	}
}

type levelBody struct {
	Name string `json:"name"`
}

func createLevelHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body levelBody
		if !decodeBody(w, r, &body) {
			return
		}
		rec, err := m.CreateLevel(r.Context(), body.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ToLevel(rec))
	}
}

func renameLevelHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var body levelBody
		if !decodeBody(w, r, &body) {
			return
		}
		rec, err := m.RenameLevel(r.Context(), id, body.Name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToLevel(rec))
	}
}

func reorderLevelsHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			LevelIDs []uint `json:"levelIds"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		recs, err := m.ReorderLevels(r.Context(), body.LevelIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toLevelList(recs))
	}
}

func deleteLevelHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := m.DeleteLevel(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listUnitsHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := UnitFilter{Name: q.Get("name"), PageSize: defaultUnitPageSize}
		var err error
		if f.LevelID, err = optionalUint(q.Get("levelId")); err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid levelId %q", q.Get("levelId")))
			return
		}
		if f.ParentID, err = optionalUint(q.Get("parentId")); err != nil {
			writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid parentId %q", q.Get("parentId")))
			return
		}
		f.RootsOnly = q.Get("roots") == "true"
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				f.PageSize = min(v, maxUnitPageSize)
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

		recs, next, err := m.ListUnits(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		out := UnitList{Units: ToUnits(recs)}
		if next > 0 {
			out.NextPageToken = strconv.FormatUint(uint64(next), 10)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createUnitHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in CreateUnitInput
		if !decodeBody(w, r, &in) {
			return
		}
		rec, err := m.CreateUnit(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ToUnit(rec))
	}
}

func getUnitHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := m.GetUnit(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToUnit(rec))
	}
}

func updateUnitHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in UpdateUnitInput
		if !decodeBody(w, r, &in) {
			return
		}
		rec, err := m.UpdateUnit(r.Context(), id, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToUnit(rec))
	}
}

func deleteUnitHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		cascade := r.URL.Query().Get("cascade") == "true"
		n, err := m.DeleteUnit(r.Context(), id, cascade)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
	}
}

func moveUnitHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var body struct {
			ParentID *uint `json:"parentId"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		rec, err := m.MoveUnit(r.Context(), id, body.ParentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ToUnit(rec))
	}
}

func childrenHandler(m *Manager) http.HandlerFunc {
	return unitListHandler(m.Children)
}

func subtreeHandler(m *Manager) http.HandlerFunc {
	return unitListHandler(m.Subtree)
}

func ancestorsHandler(m *Manager) http.HandlerFunc {
	return unitListHandler(m.Ancestors)
}

func unitListHandler(list func(ctx context.Context, id uint) ([]UnitRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		recs, err := list(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, UnitList{Units: ToUnits(recs)})
	}
}

func rebuildPathsHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := m.RebuildPaths(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"changed": n})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid id %q", raw))
		return 0, false
	}
	return uint(id), true
}

func optionalUint(raw string) (*uint, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		return nil, err
	}
	u := uint(v)
	return &u, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, apierr.Validation(apierr.CodeInvalidInput, "invalid request body: %v", err))
		return false
	}
	return true
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
		slog.Default().Error("hierarchy request failed", "error", err)
	}
	writeJSON(w, status, apierr.Body(err))
}
