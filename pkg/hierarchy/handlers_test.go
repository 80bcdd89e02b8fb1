package hierarchy

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, admin func(http.Handler) http.Handler) (*Manager, http.Handler) {
	t.Helper()
	m := newTestManager(t)
	r := chi.NewRouter()
	RegisterRoutes(r, m, admin)
	return m, r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_UnitLifecycle(t *testing.T) {
	_, h := newTestRouter(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/units", map[string]any{"name": "Uganda", "levelId": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var national Unit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &national))
	assert.Equal(t, "/1/", national.MaterializedPath)

	rec = doJSON(t, h, http.MethodPost, "/units", map[string]any{"name": "North", "levelId": 2, "parentId": national.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/units", map[string]any{"name": "Bad", "levelId": 3, "parentId": national.ID})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, "INVALID_HIERARCHY", body["code"])

	rec = doJSON(t, h, http.MethodGet, "/units/1/children", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list UnitList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Units, 1)
	assert.Equal(t, "North", list.Units[0].Name)

	rec = doJSON(t, h, http.MethodDelete, "/units/1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/units/1?cascade=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/units/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/units/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Levels(t *testing.T) {
	_, h := newTestRouter(t, nil)

	rec := doJSON(t, h, http.MethodGet, "/levels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out levelList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Levels, 5)

	rec = doJSON(t, h, http.MethodPut, "/levels/order", map[string]any{"levelIds": []uint{1, 2, 3}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/levels/5", map[string]string{"name": "Health Facility"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Health Facility")

	rec = doJSON(t, h, http.MethodDelete, "/levels/5", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlers_AdminGuardOnlyWrapsMutations(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	_, h := newTestRouter(t, deny)

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/levels", nil).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, http.MethodPost, "/levels", map[string]string{"name": "x"}).Code)
	assert.Equal(t, http.StatusForbidden, doJSON(t, h, http.MethodPost, "/paths/rebuild", nil).Code)
}
