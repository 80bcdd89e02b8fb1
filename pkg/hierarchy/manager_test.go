package hierarchy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/db/dbtest"
	"github.com/openhfr/facility-registry/pkg/dbtx"
)

var defaultLevels = []string{"National", "Region", "District", "Subcounty", "Facility"}

// newTestManager returns a Manager over an in-memory database seeded with
// the five default levels (ids 1..5, sequence 1..5).
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db := dbtest.Open(t, &LevelRecord{}, &UnitRecord{})
	m := NewManager(db, nil)
	n, err := m.SeedLevels(context.Background(), defaultLevels)
	require.NoError(t, err)
	require.Equal(t, len(defaultLevels), n)
	return m
}

func levelID(t *testing.T, m *Manager, seq int) uint {
	t.Helper()
	l, err := m.store.GetLevelBySequence(context.Background(), seq)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l.ID
}

func mustCreate(t *testing.T, m *Manager, name string, seq int, parent *UnitRecord) *UnitRecord {
	t.Helper()
	in := CreateUnitInput{Name: name, LevelID: levelID(t, m, seq)}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	u, err := m.CreateUnit(context.Background(), in)
	require.NoError(t, err)
	return u
}

func TestCreateUnit_ParentRuleScenario(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	national := mustCreate(t, m, "Uganda", 1, nil)
	region := mustCreate(t, m, "North", 2, national)
	require.Equal(t, uint(2), region.ID)

	district := mustCreate(t, m, "Gulu", 3, region)
	assert.Equal(t, uint(3), district.ID)
	assert.Equal(t, "/1/2/3/", district.MaterializedPath)

	_, err := m.CreateUnit(ctx, CreateUnitInput{
		Name:     "Misplaced",
		LevelID:  levelID(t, m, 4),
		ParentID: &region.ID,
	})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindValidation))
	assert.Equal(t, apierr.CodeInvalidHierarchy, apierr.CodeOf(err))

	// Nothing was written by the failed attempt.
	units, _, err := m.ListUnits(ctx, UnitFilter{})
	require.NoError(t, err)
	assert.Len(t, units, 3)
}

func TestValidateParentRule(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	national := mustCreate(t, m, "Uganda", 1, nil)
	missing := uint(999)

	tests := []struct {
		name     string
		levelSeq int
		parentID *uint
		wantCode string
	}{
		{"root at top level", 1, nil, ""},
		{"root below top level", 2, nil, apierr.CodeInvalidHierarchy},
		{"child one level down", 2, &national.ID, ""},
		{"child two levels down", 3, &national.ID, apierr.CodeInvalidHierarchy},
		{"missing parent", 2, &missing, apierr.CodeInvalidHierarchy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateParentRule(ctx, levelID(t, m, tt.levelSeq), tt.parentID)
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apierr.CodeOf(err))
		})
	}

	err := m.ValidateParentRule(ctx, 42, nil)
	assert.Equal(t, apierr.CodeUnknownLevel, apierr.CodeOf(err))
}

func TestCreateUnit_RequiresName(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUnit(context.Background(), CreateUnitInput{Name: "  ", LevelID: levelID(t, m, 1)})
	assert.Equal(t, apierr.CodeInvalidInput, apierr.CodeOf(err))
}

func TestMoveUnit_RecomputesDescendantPaths(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	national := mustCreate(t, m, "Uganda", 1, nil)
	north := mustCreate(t, m, "North", 2, national)
	south := mustCreate(t, m, "South", 2, national)
	gulu := mustCreate(t, m, "Gulu", 3, north)
	omoro := mustCreate(t, m, "Omoro", 4, gulu)
	clinic := mustCreate(t, m, "Clinic", 5, omoro)

	moved, err := m.MoveUnit(ctx, gulu.ID, &south.ID)
	require.NoError(t, err)
	assert.Equal(t, south.ID, *moved.ParentID)
	assert.Equal(t, fmt.Sprintf("/%d/%d/%d/", national.ID, south.ID, gulu.ID), moved.MaterializedPath)

	got, err := m.GetUnit(ctx, clinic.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/%d/%d/%d/%d/%d/", national.ID, south.ID, gulu.ID, omoro.ID, clinic.ID),
		got.MaterializedPath)

	sub, err := m.Subtree(ctx, north.ID)
	require.NoError(t, err)
	assert.Len(t, sub, 1, "north keeps only itself")
}

func TestMoveUnit_RejectsWrongLevelAndRollsBack(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	national := mustCreate(t, m, "Uganda", 1, nil)
	north := mustCreate(t, m, "North", 2, national)
	gulu := mustCreate(t, m, "Gulu", 3, north)

	_, err := m.MoveUnit(ctx, gulu.ID, &national.ID)
	require.Error(t, err)
	assert.Equal(t, apierr.CodeInvalidHierarchy, apierr.CodeOf(err))

	got, err := m.GetUnit(ctx, gulu.ID)
	require.NoError(t, err)
	assert.Equal(t, north.ID, *got.ParentID)
	assert.Equal(t, gulu.MaterializedPath, got.MaterializedPath)

	_, err = m.MoveUnit(ctx, 404, &national.ID)
	assert.True(t, apierr.Is(err, apierr.KindNotFound))
}

func TestDeleteUnit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	national := mustCreate(t, m, "Uganda", 1, nil)
	north := mustCreate(t, m, "North", 2, national)
	gulu := mustCreate(t, m, "Gulu", 3, north)
	mustCreate(t, m, "Omoro", 4, gulu)
	south := mustCreate(t, m, "South", 2, national)

	_, err := m.DeleteUnit(ctx, north.ID, false)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.KindConflict))
	assert.Equal(t, apierr.CodeHasChildren, apierr.CodeOf(err))

	n, err := m.DeleteUnit(ctx, north.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	remaining, _, err := m.ListUnits(ctx, UnitFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, national.ID, remaining[0].ID)
	assert.Equal(t, south.ID, remaining[1].ID)

	n, err = m.DeleteUnit(ctx, south.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteUnit_CascadeDoesNotMatchSiblingPrefix(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Create enough roots that ids 1 and 1x coexist.
	var roots []*UnitRecord
	for i := 0; i < 11; i++ {
		roots = append(roots, mustCreate(t, m, fmt.Sprintf("Root %d", i), 1, nil))
	}
	child := mustCreate(t, m, "Child of 11", 2, roots[10])

	n, err := m.DeleteUnit(ctx, roots[0].ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.GetUnit(ctx, child.ID)
	assert.NoError(t, err)
}

func TestAncestorsAndChildren(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	national := mustCreate(t, m, "Uganda", 1, nil)
	north := mustCreate(t, m, "North", 2, national)
	gulu := mustCreate(t, m, "Gulu", 3, north)
	amuru := mustCreate(t, m, "Amuru", 3, north)

	anc, err := m.Ancestors(ctx, gulu.ID)
	require.NoError(t, err)
	require.Len(t, anc, 2)
	assert.Equal(t, national.ID, anc[0].ID)
	assert.Equal(t, north.ID, anc[1].ID)

	kids, err := m.Children(ctx, north.ID)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, gulu.ID, kids[0].ID)
	assert.Equal(t, amuru.ID, kids[1].ID)

	anc, err = m.Ancestors(ctx, national.ID)
	require.NoError(t, err)
	assert.Empty(t, anc)
}

func TestUpdateUnit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	national := mustCreate(t, m, "Uganda", 1, nil)

	name, code := "Republic of Uganda", "UG"
	got, err := m.UpdateUnit(ctx, national.ID, UpdateUnitInput{Name: &name, Code: &code})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	require.NotNil(t, got.Code)
	assert.Equal(t, "UG", *got.Code)
	assert.Equal(t, national.MaterializedPath, got.MaterializedPath)

	empty := ""
	got, err = m.UpdateUnit(ctx, national.ID, UpdateUnitInput{Code: &empty})
	require.NoError(t, err)
	assert.Nil(t, got.Code)
}

func TestRebuildPaths(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	national := mustCreate(t, m, "Uganda", 1, nil)
	north := mustCreate(t, m, "North", 2, national)
	gulu := mustCreate(t, m, "Gulu", 3, north)

	require.NoError(t, m.store.SetPath(ctx, north.ID, "/broken/"))
	require.NoError(t, m.store.SetPath(ctx, gulu.ID, ""))

	changed, err := m.RebuildPaths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	got, err := m.GetUnit(ctx, gulu.ID)
	require.NoError(t, err)
	assert.Equal(t, gulu.MaterializedPath, got.MaterializedPath)

	changed, err = m.RebuildPaths(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestCreateUnit_JoinsCallerTransaction(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	top := levelID(t, m, 1)
	sentinel := fmt.Errorf("abort")
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		_, err := m.CreateUnit(ctx, CreateUnitInput{Name: "Uganda", LevelID: top})
		require.NoError(t, err)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	units, _, err := m.ListUnits(ctx, UnitFilter{})
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestFacilityLevel(t *testing.T) {
	m := newTestManager(t)
	l, err := m.FacilityLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Facility", l.Name)
	assert.Equal(t, 5, l.SequenceNumber)
}

func TestListUnits_Pagination(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	national := mustCreate(t, m, "Uganda", 1, nil)
	for i := 0; i < 5; i++ {
		mustCreate(t, m, fmt.Sprintf("Region %d", i), 2, national)
	}

	page1, next, err := m.ListUnits(ctx, UnitFilter{ParentID: &national.ID, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page1, 3)
	require.NotZero(t, next)

	page2, next, err := m.ListUnits(ctx, UnitFilter{ParentID: &national.ID, PageSize: 3, AfterID: next})
	require.NoError(t, err)
	assert.Len(t, page2, 2)
	assert.Zero(t, next)

	roots, _, err := m.ListUnits(ctx, UnitFilter{RootsOnly: true})
	require.NoError(t, err)
	assert.Len(t, roots, 1)

	found, _, err := m.ListUnits(ctx, UnitFilter{Name: "region 3"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
