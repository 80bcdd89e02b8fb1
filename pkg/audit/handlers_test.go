package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlers(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour)
	first := appendEvent(t, store, "alice", "units", OutcomeSuccess, base)
	appendEvent(t, store, "bob", "requests", OutcomeFailure, base.Add(time.Minute))

	r := chi.NewRouter()
	RegisterRoutes(r, store, nil)

	t.Run("list", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events?actor=alice", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var list EventList
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Equal(t, 1, list.TotalSize)
		require.Len(t, list.Events, 1)
		assert.Equal(t, first.ID, list.Events[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events/"+first.ID, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var ev Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
		assert.Equal(t, "alice", ev.Actor)
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad query", func(t *testing.T) {
		for _, q := range []string{"pageSize=-1", "since=yesterday", "pageToken=zzz"} {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("guard", func(t *testing.T) {
		guarded := chi.NewRouter()
		RegisterRoutes(guarded, store, func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			})
		})
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit/events", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
