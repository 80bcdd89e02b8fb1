package webhook

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

func TestAdminHandlers(t *testing.T) {
	s := newTestSystemStore(t)
	sub, calls := subscriber(t, "fixed-secret", http.StatusOK)

	r := chi.NewRouter()
	RegisterRoutes(r, s, NewBroadcaster(), nil)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := do(http.MethodPost, "/systems", map[string]any{
		"name": "Partner", "callbackUrl": sub.URL, "secret": "fixed-secret",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created SystemWithSecret
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "fixed-secret", created.Secret)

	rec = do(http.MethodGet, "/systems/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "fixed-secret")

	rec = do(http.MethodGet, "/systems", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "fixed-secret")

	rec = do(http.MethodPost, "/systems/broadcast-test", map[string]any{
		"event": "registry.ping", "data": map[string]string{"hello": "world"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.SuccessCount)
	require.Len(t, *calls, 1)
	assert.Equal(t, "registry.ping", (*calls)[0].env.Event)
	assert.True(t, (*calls)[0].sigOK)

	rec = do(http.MethodPost, "/systems/"+created.ID+"/rotate-secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rotated SystemWithSecret
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rotated))
	assert.NotEqual(t, "fixed-secret", rotated.Secret)

	rec = do(http.MethodDelete, "/systems/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(http.MethodGet, "/systems/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
