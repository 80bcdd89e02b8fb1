package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/dbtx"
)

// Store persists registry records.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the registry table.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("auto-migrate registry_records: %w", err)
	}
	return nil
}

// Create inserts a record. A second record for the same facility or
// identifier is a conflict.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if err := dbtx.Conn(ctx, s.db).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apierr.Wrap(apierr.KindConflict, apierr.CodeAlreadyRegistered, err,
				"facility %d is already registered", rec.FacilityID)
		}
		return fmt.Errorf("create registry record: %w", err)
	}
	return nil
}

// GetByFacilityID returns the record for a facility unit, or nil, nil.
func (s *Store) GetByFacilityID(ctx context.Context, facilityID uint) (*Record, error) {
	var rec Record
	err := dbtx.Conn(ctx, s.db).Where("facility_id = ?", facilityID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registry record by facility: %w", err)
	}
	return &rec, nil
}

// GetByIdentifier returns the record with a registry identifier, or nil, nil.
func (s *Store) GetByIdentifier(ctx context.Context, identifier string) (*Record, error) {
	var rec Record
	err := dbtx.Conn(ctx, s.db).Where("registry_identifier = ?", identifier).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get registry record by identifier: %w", err)
	}
	return &rec, nil
}

// Update rewrites the mutable fields of an existing record in place. The
// facility id and registry identifier never change.
func (s *Store) Update(ctx context.Context, rec *Record) error {
	err := dbtx.Conn(ctx, s.db).Model(&Record{}).Where("id = ?", rec.ID).
		Select("name", "facility_type", "ownership", "authority", "address", "phone", "email",
			"latitude", "longitude", "region_id", "district_id", "subcounty_id", "last_request_id", "updated_at").
		Updates(rec).Error
	if err != nil {
		return fmt.Errorf("update registry record: %w", err)
	}
	return nil
}

// Filter narrows List.
type Filter struct {
	RegionID    *uint
	DistrictID  *uint
	SubcountyID *uint
	Name        string
	PageSize    int
	AfterID     uint
}

// List returns one page of records ordered by id, and the cursor of the next
// page (0 on the last page).
func (s *Store) List(ctx context.Context, f Filter) ([]Record, uint, error) {
	q := dbtx.Conn(ctx, s.db).Model(&Record{})
	if f.RegionID != nil {
		q = q.Where("region_id = ?", *f.RegionID)
	}
	if f.DistrictID != nil {
		q = q.Where("district_id = ?", *f.DistrictID)
	}
	if f.SubcountyID != nil {
		q = q.Where("subcounty_id = ?", *f.SubcountyID)
	}
	if f.Name != "" {
		q = q.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(f.Name)+"%")
	}
	if f.AfterID > 0 {
		q = q.Where("id > ?", f.AfterID)
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	var recs []Record
	if err := q.Order("id ASC").Limit(pageSize + 1).Find(&recs).Error; err != nil {
		return nil, 0, fmt.Errorf("list registry records: %w", err)
	}
	var next uint
	if len(recs) > pageSize {
		recs = recs[:pageSize]
		next = recs[pageSize-1].ID
	}
	return recs, next, nil
}

// Count returns the total number of records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := dbtx.Conn(ctx, s.db).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count registry records: %w", err)
	}
	return n, nil
}
