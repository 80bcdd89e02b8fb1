package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/dbtx"
)

// Manager owns every structural mutation of the administrative tree. Each
// mutation runs in one transaction, or joins the caller's when ctx carries one.
//
// After every successful mutation the tree satisfies:
//   - a unit's level sequence is its parent's level sequence + 1,
//   - root units sit at the lowest-sequence level,
//   - a unit's materialized path is its parent's path followed by "<id>/".
type Manager struct {
	db     *gorm.DB
	store  *Store
	logger *slog.Logger
}

// NewManager creates a Manager backed by db.
func NewManager(db *gorm.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{db: db, store: NewStore(db), logger: logger}
}

// Store exposes the underlying store for read paths.
func (m *Manager) Store() *Store { return m.store }

// CreateUnitInput holds the fields of a new unit.
type CreateUnitInput struct {
	Name     string  `json:"name"`
	Code     *string `json:"code,omitempty"`
	LevelID  uint    `json:"levelId"`
	ParentID *uint   `json:"parentId,omitempty"`
}

// UpdateUnitInput holds the non-structural fields that may change on a unit.
// A nil field is left untouched; an empty Code clears it.
type UpdateUnitInput struct {
	Name *string `json:"name,omitempty"`
	Code *string `json:"code,omitempty"`
}

// ValidateParentRule checks that a unit at levelID may hang under parentID.
// A nil parent is only allowed at the lowest-sequence level.
func (m *Manager) ValidateParentRule(ctx context.Context, levelID uint, parentID *uint) error {
	level, err := m.store.GetLevel(ctx, levelID)
	if err != nil {
		return err
	}
	if level == nil {
		return apierr.Validation(apierr.CodeUnknownLevel, "level %d does not exist", levelID)
	}

	if parentID == nil {
		levels, err := m.store.ListLevels(ctx)
		if err != nil {
			return err
		}
		if levels[0].ID != level.ID {
			return apierr.Validation(apierr.CodeInvalidHierarchy,
				"a unit without parent must be at level %q, not %q", levels[0].Name, level.Name)
		}
		return nil
	}

	parent, err := m.store.GetUnit(ctx, *parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return apierr.Validation(apierr.CodeInvalidHierarchy, "parent unit %d does not exist", *parentID)
	}
	parentLevel, err := m.store.GetLevel(ctx, parent.LevelID)
	if err != nil {
		return err
	}
	if parentLevel == nil {
		return fmt.Errorf("parent unit %d references missing level %d", parent.ID, parent.LevelID)
	}
	if parentLevel.SequenceNumber+1 != level.SequenceNumber {
		return apierr.Validation(apierr.CodeInvalidHierarchy,
			"a %q unit (sequence %d) cannot be placed under a %q unit (sequence %d)",
			level.Name, level.SequenceNumber, parentLevel.Name, parentLevel.SequenceNumber)
	}
	return nil
}

// CreateUnit validates the parent rule, inserts the unit and assigns its
// materialized path.
func (m *Manager) CreateUnit(ctx context.Context, in CreateUnitInput) (*UnitRecord, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.Validation(apierr.CodeInvalidInput, "unit name is required")
	}

	var created *UnitRecord
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		if err := m.ValidateParentRule(ctx, in.LevelID, in.ParentID); err != nil {
			return err
		}
		var parent *UnitRecord
		if in.ParentID != nil {
			p, err := m.store.GetUnit(ctx, *in.ParentID)
			if err != nil {
				return err
			}
			parent = p
		}

		rec := &UnitRecord{
			Name:     name,
			Code:     normalizeCode(in.Code),
			LevelID:  in.LevelID,
			ParentID: in.ParentID,
		}
		if err := m.store.CreateUnit(ctx, rec); err != nil {
			return err
		}
		// The path embeds the generated id, so it is written after the insert.
		rec.MaterializedPath = PathFor(parent, rec.ID)
		if err := m.store.SetPath(ctx, rec.ID, rec.MaterializedPath); err != nil {
			return err
		}
		created = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateUnit changes a unit's name or code. Structure is never touched.
func (m *Manager) UpdateUnit(ctx context.Context, id uint, in UpdateUnitInput) (*UnitRecord, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apierr.Validation(apierr.CodeInvalidInput, "unit name must not be empty")
		}
		updates["name"] = name
	}
	if in.Code != nil {
		updates["code"] = normalizeCode(in.Code)
	}

	var out *UnitRecord
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		unit, err := m.requireUnit(ctx, id)
		if err != nil {
			return err
		}
		if err := m.store.UpdateUnit(ctx, id, updates); err != nil {
			return err
		}
		out, err = m.store.GetUnit(ctx, unit.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MoveUnit re-parents a unit and recomputes the materialized path of the
// unit and every descendant, parents before children.
func (m *Manager) MoveUnit(ctx context.Context, id uint, newParentID *uint) (*UnitRecord, error) {
	var out *UnitRecord
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		unit, err := m.requireUnit(ctx, id)
		if err != nil {
			return err
		}
		if newParentID != nil && *newParentID == unit.ID {
			return apierr.Validation(apierr.CodeInvalidHierarchy, "unit %d cannot be its own parent", id)
		}
		if err := m.ValidateParentRule(ctx, unit.LevelID, newParentID); err != nil {
			return err
		}

		var parent *UnitRecord
		if newParentID != nil {
			if parent, err = m.store.GetUnit(ctx, *newParentID); err != nil {
				return err
			}
		}
		if err := m.store.UpdateUnit(ctx, unit.ID, map[string]any{"parent_id": newParentID}); err != nil {
			return err
		}
		unit.ParentID = newParentID
		if _, err := m.repath(ctx, unit, parent); err != nil {
			return err
		}
		out, err = m.store.GetUnit(ctx, unit.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// repath recomputes the path of root (placed under parent) and of its whole
// subtree breadth first. It returns the number of stored paths that changed.
func (m *Manager) repath(ctx context.Context, root *UnitRecord, parent *UnitRecord) (int, error) {
	changed := 0
	want := PathFor(parent, root.ID)
	if root.MaterializedPath != want {
		if err := m.store.SetPath(ctx, root.ID, want); err != nil {
			return changed, err
		}
		changed++
	}
	root.MaterializedPath = want

	queue := []UnitRecord{*root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		children, err := m.store.ListChildren(ctx, node.ID)
		if err != nil {
			return changed, err
		}
		for _, child := range children {
			path := PathFor(&node, child.ID)
			if child.MaterializedPath != path {
				if err := m.store.SetPath(ctx, child.ID, path); err != nil {
					return changed, err
				}
				changed++
			}
			child.MaterializedPath = path
			queue = append(queue, child)
		}
	}
	return changed, nil
}

// DeleteUnit removes a unit. Without cascade a unit that still has children
// is refused; with cascade the whole subtree is removed in one statement.
// It returns the number of units deleted.
func (m *Manager) DeleteUnit(ctx context.Context, id uint, cascade bool) (int64, error) {
	var deleted int64
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		unit, err := m.requireUnit(ctx, id)
		if err != nil {
			return err
		}
		if !cascade {
			n, err := m.store.CountChildren(ctx, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return apierr.Conflict(apierr.CodeHasChildren,
					"unit %d has %d children; delete them first or use cascade", id, n)
			}
			deleted, err = m.store.DeleteUnit(ctx, id)
			return err
		}

		if unit.MaterializedPath == "" {
			return fmt.Errorf("unit %d has no materialized path; rebuild paths before a cascading delete", id)
		}
		deleted, err = m.store.DeleteByPathPrefix(ctx, unit.MaterializedPath)
		return err
	})
	if err != nil {
		return 0, err
	}
	if cascade {
		m.logger.Info("deleted unit subtree", "unitID", id, "deleted", deleted)
	}
	return deleted, nil
}

// GetUnit returns a unit or a not-found error.
func (m *Manager) GetUnit(ctx context.Context, id uint) (*UnitRecord, error) {
	return m.requireUnit(ctx, id)
}

// ListUnits returns one page of units matching f.
func (m *Manager) ListUnits(ctx context.Context, f UnitFilter) ([]UnitRecord, uint, error) {
	return m.store.ListUnits(ctx, f)
}

// Children returns the direct children of a unit.
func (m *Manager) Children(ctx context.Context, id uint) ([]UnitRecord, error) {
	if _, err := m.requireUnit(ctx, id); err != nil {
		return nil, err
	}
	return m.store.ListChildren(ctx, id)
}

// Subtree returns a unit and all of its descendants, shallowest first.
func (m *Manager) Subtree(ctx context.Context, id uint) ([]UnitRecord, error) {
	unit, err := m.requireUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.store.ListByPathPrefix(ctx, unit.MaterializedPath)
}

// Ancestors returns the units above id, root first.
func (m *Manager) Ancestors(ctx context.Context, id uint) ([]UnitRecord, error) {
	unit, err := m.requireUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := ParsePath(unit.MaterializedPath)
	if err != nil {
		return nil, err
	}
	ids = ids[:len(ids)-1]
	recs, err := m.store.GetUnits(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]UnitRecord, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}
	out := make([]UnitRecord, 0, len(ids))
	for _, aid := range ids {
		if r, ok := byID[aid]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// RebuildPaths recomputes every materialized path from the parent links,
// roots first, and returns how many stored paths changed. Units that cannot
// be reached from a root are left as they are and reported in the log.
func (m *Manager) RebuildPaths(ctx context.Context) (int, error) {
	changed := 0
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		changed = 0
		roots, err := m.store.ListRoots(ctx)
		if err != nil {
			return err
		}
		for i := range roots {
			n, err := m.repath(ctx, &roots[i], nil)
			if err != nil {
				return err
			}
			changed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	m.logger.Info("rebuilt materialized paths", "changed", changed)
	return changed, nil
}

// FacilityLevel returns the deepest level, the one facilities are created at.
func (m *Manager) FacilityLevel(ctx context.Context) (*LevelRecord, error) {
	seq, err := m.store.MaxSequence(ctx)
	if err != nil {
		return nil, err
	}
	if seq < 2 {
		return nil, apierr.Validation(apierr.CodeUnknownLevel,
			"the hierarchy needs at least two levels before facilities can be registered")
	}
	return m.store.GetLevelBySequence(ctx, seq)
}

func (m *Manager) requireUnit(ctx context.Context, id uint) (*UnitRecord, error) {
	unit, err := m.store.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, apierr.NotFound("unit", id)
	}
	return unit, nil
}

func normalizeCode(code *string) *string {
	if code == nil {
		return nil
	}
	c := strings.TrimSpace(*code)
	if c == "" {
		return nil
	}
	return &c
}
