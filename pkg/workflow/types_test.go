package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		current Status
		role    Role
		want    Status
	}{
		{StatusInitiated, RoleDistrict, StatusMOHVerified},
		{StatusInitiated, RolePrivate, StatusDistrictApproved},
		{StatusInitiated, RoleOther, StatusDistrictApproved},
		{StatusDistrictApproved, RoleDistrict, StatusMOHVerified},
		{StatusDistrictApproved, RolePrivate, StatusMOHVerified},
		{StatusPlanningApproved, RolePrivate, StatusPublished},
		{StatusMOHVerified, RoleDistrict, StatusPublished},
		{StatusMOHVerified, RoleOther, StatusPublished},
	}
	for _, tt := range tests {
		t.Run(string(tt.current)+"/"+string(tt.role), func(t *testing.T) {
			got, err := NextStatus(tt.current, tt.role)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, terminal := range []Status{StatusPublished, StatusRejected} {
		_, err := NextStatus(terminal, RoleDistrict)
		require.Error(t, err)
		assert.True(t, apierr.Is(err, apierr.KindConflict))
		assert.Equal(t, apierr.CodeInvalidTransition, apierr.CodeOf(err))
		assert.Error(t, CanReject(terminal))
	}
	assert.NoError(t, CanReject(StatusMOHVerified))
}

func TestStatusRejectsUnknownValues(t *testing.T) {
	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"district_approved"`), &s))
	assert.Equal(t, StatusDistrictApproved, s)

	assert.Error(t, json.Unmarshal([]byte(`"pending_review"`), &s))
	assert.Error(t, s.Scan("approved"))
	assert.Error(t, s.Scan(42))
	require.NoError(t, s.Scan([]byte("published")))
	assert.Equal(t, StatusPublished, s)

	_, err := Status("draft").Value()
	assert.Error(t, err)
}

func TestRequestTypeAndRole(t *testing.T) {
	rt, err := ParseRequestType(" Addition ")
	require.NoError(t, err)
	assert.Equal(t, TypeAddition, rt)

	var in SubmitInput
	assert.Error(t, json.Unmarshal([]byte(`{"requestType":"merge"}`), &in))

	assert.Equal(t, RoleDistrict, RoleFromCaller("District"))
	assert.Equal(t, RolePrivate, RoleFromCaller("private"))
	assert.Equal(t, RoleOther, RoleFromCaller("moh"))
	assert.Equal(t, RoleOther, RoleFromCaller(""))

	var r Role
	assert.Error(t, r.Scan("admin"))
}
