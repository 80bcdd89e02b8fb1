package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/db/dbtest"
)

func newTestSystemStore(t *testing.T) *SystemStore {
	t.Helper()
	return NewSystemStore(dbtest.Open(t, &SystemRecord{}, &ReceiptRecord{}))
}

func boolPtr(v bool) *bool { return &v }

func TestSystemStore_CreateGeneratesCredentials(t *testing.T) {
	s := newTestSystemStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateSystemInput{Name: "DHIS2", CallbackURL: "https://dhis2.example.org/"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Contains(t, rec.APIKey, "hfr_")
	assert.Len(t, rec.Secret, 64)
	assert.True(t, rec.IsActive)
	assert.Equal(t, "https://dhis2.example.org", rec.CallbackURL)

	got, err := s.GetActiveByAPIKey(ctx, rec.APIKey)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)
}

func TestSystemStore_DuplicateAPIKey(t *testing.T) {
	s := newTestSystemStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateSystemInput{Name: "A", CallbackURL: "http://a.local", APIKey: "shared"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateSystemInput{Name: "B", CallbackURL: "http://b.local", APIKey: "shared"})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindConflict))
	assert.Equal(t, apierr.CodeDuplicateAPIKey, apierr.CodeOf(err))
}

func TestSystemStore_Validation(t *testing.T) {
	s := newTestSystemStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateSystemInput{Name: "", CallbackURL: "http://a.local"})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	_, err = s.Create(ctx, CreateSystemInput{Name: "A", CallbackURL: "ftp://a.local"})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	_, err = s.Create(ctx, CreateSystemInput{Name: "A", CallbackURL: "/relative"})
	assert.True(t, apierr.Is(err, apierr.KindValidation))
}

func TestSystemStore_ActiveFlagAndUpdates(t *testing.T) {
	s := newTestSystemStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, CreateSystemInput{Name: "A", CallbackURL: "http://a.local"})
	require.NoError(t, err)
	b, err := s.Create(ctx, CreateSystemInput{Name: "B", CallbackURL: "http://b.local", IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, b.IsActive)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	got, err := s.GetActiveByAPIKey(ctx, b.APIKey)
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := s.Update(ctx, b.ID, UpdateSystemInput{IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.IsActive)

	rotated, err := s.RotateSecret(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.Secret, rotated.Secret)
	assert.Equal(t, a.APIKey, rotated.APIKey)

	_, err = s.Update(ctx, "missing", UpdateSystemInput{})
	assert.True(t, apierr.Is(err, apierr.KindNotFound))

	require.NoError(t, s.Delete(ctx, a.ID))
	assert.True(t, apierr.Is(s.Delete(ctx, a.ID), apierr.KindNotFound))
}
