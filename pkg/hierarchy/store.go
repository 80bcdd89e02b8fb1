package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/dbtx"
)

// Store provides persistence for levels and units. Every method uses the
// transaction carried by ctx when there is one.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the hierarchy tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&LevelRecord{}); err != nil {
		return fmt.Errorf("auto-migrate admin_levels: %w", err)
	}
	if err := s.db.AutoMigrate(&UnitRecord{}); err != nil {
		return fmt.Errorf("auto-migrate admin_units: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return dbtx.Conn(ctx, s.db)
}

// CreateLevel inserts a level.
func (s *Store) CreateLevel(ctx context.Context, rec *LevelRecord) error {
	if err := s.conn(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create level: %w", err)
	}
	return nil
}

// GetLevel returns the level with the given id, or nil, nil if none exists.
func (s *Store) GetLevel(ctx context.Context, id uint) (*LevelRecord, error) {
	var rec LevelRecord
	err := s.conn(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get level: %w", err)
	}
	return &rec, nil
}

// GetLevelBySequence returns the level at seq, or nil, nil if none exists.
func (s *Store) GetLevelBySequence(ctx context.Context, seq int) (*LevelRecord, error) {
	var rec LevelRecord
	err := s.conn(ctx).Where("sequence_number = ?", seq).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get level by sequence: %w", err)
	}
	return &rec, nil
}

// ListLevels returns all levels ordered by sequence number.
func (s *Store) ListLevels(ctx context.Context) ([]LevelRecord, error) {
	var recs []LevelRecord
	if err := s.conn(ctx).Order("sequence_number ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return recs, nil
}

// MaxSequence returns the highest sequence number in use, or 0 with no levels.
func (s *Store) MaxSequence(ctx context.Context) (int, error) {
	var seq int
	if err := s.conn(ctx).Model(&LevelRecord{}).
		Select("COALESCE(MAX(sequence_number), 0)").Scan(&seq).Error; err != nil {
		return 0, fmt.Errorf("max level sequence: %w", err)
	}
	return seq, nil
}

// SetLevelSequence moves a level to seq.
func (s *Store) SetLevelSequence(ctx context.Context, id uint, seq int) error {
	if err := s.conn(ctx).Model(&LevelRecord{}).Where("id = ?", id).
		Update("sequence_number", seq).Error; err != nil {
		return fmt.Errorf("set level %d sequence: %w", id, err)
	}
	return nil
}

// RenameLevel updates a level's name.
func (s *Store) RenameLevel(ctx context.Context, id uint, name string) error {
	if err := s.conn(ctx).Model(&LevelRecord{}).Where("id = ?", id).
		Update("name", name).Error; err != nil {
		return fmt.Errorf("rename level: %w", err)
	}
	return nil
}

// DeleteLevel removes a level row.
func (s *Store) DeleteLevel(ctx context.Context, id uint) error {
	if err := s.conn(ctx).Where("id = ?", id).Delete(&LevelRecord{}).Error; err != nil {
		return fmt.Errorf("delete level: %w", err)
	}
	return nil
}

// CountUnitsAtLevel returns how many units reference the level.
func (s *Store) CountUnitsAtLevel(ctx context.Context, levelID uint) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&UnitRecord{}).Where("level_id = ?", levelID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count units at level: %w", err)
	}
	return n, nil
}

// CreateUnit inserts a unit.
func (s *Store) CreateUnit(ctx context.Context, rec *UnitRecord) error {
	if err := s.conn(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create unit: %w", err)
	}
	return nil
}

// GetUnit returns the unit with the given id, or nil, nil if none exists.
func (s *Store) GetUnit(ctx context.Context, id uint) (*UnitRecord, error) {
	var rec UnitRecord
	err := s.conn(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return &rec, nil
}

// GetUnits returns the units with the given ids in no particular order.
func (s *Store) GetUnits(ctx context.Context, ids []uint) ([]UnitRecord, error) {
	var recs []UnitRecord
	if len(ids) == 0 {
		return recs, nil
	}
	if err := s.conn(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("get units: %w", err)
	}
	return recs, nil
}

// UpdateUnit writes the given columns of a unit.
func (s *Store) UpdateUnit(ctx context.Context, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if err := s.conn(ctx).Model(&UnitRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update unit %d: %w", id, err)
	}
	return nil
}

// SetPath writes a unit's materialized path.
func (s *Store) SetPath(ctx context.Context, id uint, path string) error {
	if err := s.conn(ctx).Model(&UnitRecord{}).Where("id = ?", id).
		Update("materialized_path", path).Error; err != nil {
		return fmt.Errorf("set path of unit %d: %w", id, err)
	}
	return nil
}

// ListChildren returns the direct children of a unit ordered by id.
func (s *Store) ListChildren(ctx context.Context, parentID uint) ([]UnitRecord, error) {
	var recs []UnitRecord
	if err := s.conn(ctx).Where("parent_id = ?", parentID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return recs, nil
}

// ListRoots returns the units without a parent ordered by id.
func (s *Store) ListRoots(ctx context.Context) ([]UnitRecord, error) {
	var recs []UnitRecord
	if err := s.conn(ctx).Where("parent_id IS NULL").Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list roots: %w", err)
	}
	return recs, nil
}

// CountChildren returns the number of direct children of a unit.
func (s *Store) CountChildren(ctx context.Context, id uint) (int64, error) {
	var n int64
	if err := s.conn(ctx).Model(&UnitRecord{}).Where("parent_id = ?", id).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count children: %w", err)
	}
	return n, nil
}

// ListByPathPrefix returns every unit whose path starts with prefix,
// shallowest first.
func (s *Store) ListByPathPrefix(ctx context.Context, prefix string) ([]UnitRecord, error) {
	var recs []UnitRecord
	if err := s.conn(ctx).Where("materialized_path LIKE ?", prefix+"%").
		Order("LENGTH(materialized_path) ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list subtree: %w", err)
	}
	return recs, nil
}

// DeleteByPathPrefix deletes every unit whose path starts with prefix and
// returns the number of rows removed.
func (s *Store) DeleteByPathPrefix(ctx context.Context, prefix string) (int64, error) {
	res := s.conn(ctx).Where("materialized_path LIKE ?", prefix+"%").Delete(&UnitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete subtree: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteUnit removes a single unit.
func (s *Store) DeleteUnit(ctx context.Context, id uint) (int64, error) {
	res := s.conn(ctx).Where("id = ?", id).Delete(&UnitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete unit: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// UnitFilter narrows ListUnits.
type UnitFilter struct {
	LevelID   *uint
	ParentID  *uint
	RootsOnly bool
	Name      string
	PageSize  int
	// AfterID is the keyset cursor: only units with a greater id are returned.
	AfterID uint
}

// ListUnits returns one page of units ordered by id, and the cursor of the
// next page (0 when this is the last one).
func (s *Store) ListUnits(ctx context.Context, f UnitFilter) ([]UnitRecord, uint, error) {
	q := s.conn(ctx).Model(&UnitRecord{})
	if f.LevelID != nil {
		q = q.Where("level_id = ?", *f.LevelID)
	}
	if f.ParentID != nil {
		q = q.Where("parent_id = ?", *f.ParentID)
	} else if f.RootsOnly {
		q = q.Where("parent_id IS NULL")
	}
	if f.Name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	if f.AfterID > 0 {
		q = q.Where("id > ?", f.AfterID)
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	var recs []UnitRecord
	if err := q.Order("id ASC").Limit(pageSize + 1).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("list units: %w", err)
	}
	var next uint
	if len(recs) > pageSize {
		recs = recs[:pageSize]
		next = recs[pageSize-1].ID
	}
	return recs, next, nil
}

// ListAllUnits returns every unit ordered by id.
func (s *Store) ListAllUnits(ctx context.Context) ([]UnitRecord, error) {
	var recs []UnitRecord
	if err := s.conn(ctx).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list all units: %w", err)
	}
	return recs, nil
}
