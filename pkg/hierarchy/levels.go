package hierarchy

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/dbtx"
)

// ListLevels returns all levels ordered by sequence number.
func (m *Manager) ListLevels(ctx context.Context) ([]LevelRecord, error) {
	return m.store.ListLevels(ctx)
}

// GetLevel returns a level or a not-found error.
func (m *Manager) GetLevel(ctx context.Context, id uint) (*LevelRecord, error) {
	level, err := m.store.GetLevel(ctx, id)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, apierr.NotFound("level", id)
	}
	return level, nil
}

// CreateLevel appends a level below the current deepest one.
func (m *Manager) CreateLevel(ctx context.Context, name string) (*LevelRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.Validation(apierr.CodeInvalidInput, "level name is required")
	}
	var rec *LevelRecord
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		seq, err := m.store.MaxSequence(ctx)
		if err != nil {
			return err
		}
		rec = &LevelRecord{Name: name, SequenceNumber: seq + 1}
		return m.store.CreateLevel(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RenameLevel changes a level's display name.
func (m *Manager) RenameLevel(ctx context.Context, id uint, name string) (*LevelRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.Validation(apierr.CodeInvalidInput, "level name is required")
	}
	var rec *LevelRecord
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		level, err := m.GetLevel(ctx, id)
		if err != nil {
			return err
		}
		if err := m.store.RenameLevel(ctx, id, name); err != nil {
			return err
		}
		level.Name = name
		rec = level
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ReorderLevels assigns sequence numbers 1..N following orderedIDs, which
// must name every level exactly once. The reorder is refused when it would
// break the parent rule for units already in the tree.
func (m *Manager) ReorderLevels(ctx context.Context, orderedIDs []uint) ([]LevelRecord, error) {
	var out []LevelRecord
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		levels, err := m.store.ListLevels(ctx)
		if err != nil {
			return err
		}
		known := make(map[uint]bool, len(levels))
		for _, l := range levels {
			known[l.ID] = true
		}
		seen := make(map[uint]bool, len(orderedIDs))
		for _, id := range orderedIDs {
			if !known[id] {
				return apierr.Validation(apierr.CodeUnknownLevel, "level %d does not exist", id)
			}
			if seen[id] {
				return apierr.Validation(apierr.CodeUnknownLevel, "level %d listed more than once", id)
			}
			seen[id] = true
		}
		if len(orderedIDs) != len(levels) {
			return apierr.Validation(apierr.CodeUnknownLevel,
				"ordering lists %d levels but %d exist", len(orderedIDs), len(levels))
		}
		if len(levels) == 0 {
			out = levels
			return nil
		}

		// Park every level above the current range first so the unique
		// sequence index never sees two rows with the same number.
		offset := len(levels)
		if n := levels[len(levels)-1].SequenceNumber; n > offset {
			offset = n
		}
		for i, id := range orderedIDs {
			if err := m.store.SetLevelSequence(ctx, id, offset+i+1); err != nil {
				return err
			}
		}
		for i, id := range orderedIDs {
			if err := m.store.SetLevelSequence(ctx, id, i+1); err != nil {
				return err
			}
		}
		if err := m.checkParentRule(ctx); err != nil {
			return err
		}
		out, err = m.store.ListLevels(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("reordered levels", "order", orderedIDs)
	return out, nil
}

// DeleteLevel removes an unused level and closes the gap by shifting every
// deeper level up by one.
func (m *Manager) DeleteLevel(ctx context.Context, id uint) error {
	return dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		level, err := m.GetLevel(ctx, id)
		if err != nil {
			return err
		}
		n, err := m.store.CountUnitsAtLevel(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apierr.Conflict(apierr.CodeLevelInUse, "level %q is used by %d units", level.Name, n)
		}
		if err := m.store.DeleteLevel(ctx, id); err != nil {
			return err
		}

		levels, err := m.store.ListLevels(ctx)
		if err != nil {
			return err
		}
		// Ascending order: each target number was freed by the previous step.
		for _, l := range levels {
			if l.SequenceNumber > level.SequenceNumber {
				if err := m.store.SetLevelSequence(ctx, l.ID, l.SequenceNumber-1); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// checkParentRule verifies every unit against the current level ordering.
func (m *Manager) checkParentRule(ctx context.Context) error {
	levels, err := m.store.ListLevels(ctx)
	if err != nil {
		return err
	}
	if len(levels) == 0 {
		return nil
	}
	seqOf := make(map[uint]int, len(levels))
	for _, l := range levels {
		seqOf[l.ID] = l.SequenceNumber
	}
	units, err := m.store.ListAllUnits(ctx)
	if err != nil {
		return err
	}
	levelOf := make(map[uint]uint, len(units))
	for _, u := range units {
		levelOf[u.ID] = u.LevelID
	}
	for _, u := range units {
		if u.ParentID == nil {
			if seqOf[u.LevelID] != levels[0].SequenceNumber {
				return apierr.Validation(apierr.CodeInvalidHierarchy,
					"root unit %d would no longer be at the top level", u.ID)
			}
			continue
		}
		if seqOf[levelOf[*u.ParentID]]+1 != seqOf[u.LevelID] {
			return apierr.Validation(apierr.CodeInvalidHierarchy,
				"unit %d would no longer sit one level below its parent %d", u.ID, *u.ParentID)
		}
	}
	return nil
}

// SeedFile is the on-disk format of the initial level list.
//
//	levels:
//	  - National
//	  - Region
type SeedFile struct {
	Levels []string `yaml:"levels"`
}

// LoadSeedFile reads a level seed file.
func LoadSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(f.Levels) == 0 {
		return nil, fmt.Errorf("seed file %s lists no levels", path)
	}
	return f.Levels, nil
}

// SeedLevels creates the named levels in order when no level exists yet. A
// hierarchy that already has levels is left untouched. It returns the number
// of levels created.
func (m *Manager) SeedLevels(ctx context.Context, names []string) (int, error) {
	created := 0
	err := dbtx.Run(ctx, m.db, func(ctx context.Context) error {
		existing, err := m.store.ListLevels(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		for i, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				return apierr.Validation(apierr.CodeInvalidInput, "seed level %d has no name", i+1)
			}
			if err := m.store.CreateLevel(ctx, &LevelRecord{Name: name, SequenceNumber: i + 1}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		m.logger.Info("seeded hierarchy levels", "count", created)
	}
	return created, nil
}
