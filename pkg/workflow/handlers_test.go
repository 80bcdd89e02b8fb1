package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhfr/facility-registry/pkg/authz"
)

func newTestRouter(f *fixture) http.Handler {
	roles := authz.NewRoleAuthorizer([]string{"admin"}, []string{"moh"})
	r := chi.NewRouter()
	r.Use(authz.IdentityMiddleware())
	RegisterRoutes(r, f.svc, Guards{
		Submit:  authz.RequirePermission(roles, authz.ResourceRequests, authz.VerbCreate),
		Approve: authz.RequirePermission(roles, authz.ResourceRequests, authz.VerbApprove),
		Delete:  authz.RequirePermission(roles, authz.ResourceRequests, authz.VerbDelete),
	})
	return r
}

func call(t *testing.T, h http.Handler, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(authz.HeaderUser, user)
	}
	if role != "" {
		req.Header.Set(authz.HeaderRole, role)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlers_RequestLifecycle(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rr := call(t, h, http.MethodPost, "/requests", "", "", map[string]any{
		"requestType": "addition", "name": "Anon Clinic", "subcountyId": f.subA,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(t, h, http.MethodPost, "/requests", "dho-gulu", "district", map[string]any{
		"requestType": "addition", "name": "Gulu HC IV", "subcountyId": f.subA, "email": "hc4@gulu.go.ug",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created FacilityRequest
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, StatusInitiated, created.Status)
	assert.Equal(t, RoleDistrict, created.Role)

	approve := fmt.Sprintf("/requests/%s/approve", created.ID)
	rr = call(t, h, http.MethodPost, approve, "dho-gulu", "district", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = call(t, h, http.MethodPost, approve, "moh-officer", "moh", map[string]string{"comments": "ok"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = call(t, h, http.MethodPost, approve, "moh-officer", "moh", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	f.svc.Wait()
	var published FacilityRequest
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&published))
	assert.Equal(t, StatusPublished, published.Status)
	assert.NotEmpty(t, published.RegistryIdentifier)

	rr = call(t, h, http.MethodPost, approve, "moh-officer", "moh", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"code":"INVALID_TRANSITION"`)

	rr = call(t, h, http.MethodGet, "/requests/"+created.ID+"/history", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history struct {
		History []StatusEntry `json:"history"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&history))
	require.Len(t, history.History, 3)
	assert.Equal(t, "ok", history.History[1].Comments)

	rr = call(t, h, http.MethodGet, "/requests?status=published", "", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list FacilityRequestList
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Equal(t, 1, list.TotalSize)

	rr = call(t, h, http.MethodDelete, "/requests/"+created.ID, "moh-officer", "moh", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = call(t, h, http.MethodDelete, "/requests/"+created.ID, "root", "admin", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandlers_BadInput(t *testing.T) {
	f := newFixture(t)
	h := newTestRouter(f)

	rr := call(t, h, http.MethodGet, "/requests?status=approved", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(t, h, http.MethodPost, "/requests", "u", "private", map[string]any{"requestType": "merge", "name": "X"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = call(t, h, http.MethodGet, "/requests/unknown", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = call(t, h, http.MethodPost, "/requests/unknown/reject", "m", "moh", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
