package audit

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribePath(t *testing.T) {
	tests := []struct {
		path                 string
		resource, id, action string
	}{
		{"/api/v1/units", "units", "", ""},
		{"/api/v1/units/12", "units", "12", ""},
		{"/api/v1/units/12/move", "units", "12", "move"},
		{"/api/v1/levels/order", "levels", "", "order"},
		{"/api/v1/paths/rebuild", "paths", "", "rebuild"},
		{"/api/v1/requests/5f1c/approve", "requests", "5f1c", "approve"},
		{"/api/v1/systems/broadcast-test", "systems", "", "broadcast-test"},
		{"/api/v1/systems/abc/rotate-secret", "systems", "abc", "rotate-secret"},
		{"/healthz", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resource, id, action := describePath(tt.path)
			assert.Equal(t, tt.resource, resource)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestActionVerb(t *testing.T) {
	assert.Equal(t, "create", actionVerb(http.MethodPost, ""))
	assert.Equal(t, "update", actionVerb(http.MethodPut, ""))
	assert.Equal(t, "patch", actionVerb(http.MethodPatch, ""))
	assert.Equal(t, "delete", actionVerb(http.MethodDelete, ""))
	assert.Equal(t, "approve", actionVerb(http.MethodPost, "approve"))
}

func TestIsAuditable(t *testing.T) {
	assert.True(t, isAuditable(http.MethodPost, "/api/v1/requests"))
	assert.True(t, isAuditable(http.MethodDelete, "/api/v1/units/3"))
	assert.False(t, isAuditable(http.MethodGet, "/api/v1/units"))
	assert.False(t, isAuditable(http.MethodPost, "/api/v1/webhook"))
	assert.False(t, isAuditable(http.MethodPost, "/healthz"))
}

func TestOutcomeFromStatus(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, outcomeFromStatus(http.StatusCreated))
	assert.Equal(t, OutcomeDenied, outcomeFromStatus(http.StatusForbidden))
	assert.Equal(t, OutcomeFailure, outcomeFromStatus(http.StatusConflict))
}
