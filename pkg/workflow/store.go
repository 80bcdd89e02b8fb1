package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/dbtx"
	"github.com/openhfr/facility-registry/pkg/pagination"
)

// Store persists facility requests and their status history.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the request tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&FacilityRequestRecord{}); err != nil {
		return fmt.Errorf("auto-migrate facility_requests: %w", err)
	}
	if err := s.db.AutoMigrate(&StatusTrackingRecord{}); err != nil {
		return fmt.Errorf("auto-migrate status_tracking: %w", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return dbtx.Conn(ctx, s.db)
}

// Create inserts a new request.
func (s *Store) Create(ctx context.Context, rec *FacilityRequestRecord) error {
	if err := s.conn(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create facility request: %w", err)
	}
	return nil
}

// Get retrieves a request by ID, or nil, nil.
func (s *Store) Get(ctx context.Context, id string) (*FacilityRequestRecord, error) {
	var rec FacilityRequestRecord
	if err := s.conn(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get facility request: %w", err)
	}
	return &rec, nil
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Status      Status
	RequestType RequestType
	SubmittedBy string
	DistrictID  *uint
	PageSize    int
	PageToken   string
}

// ErrInvalidPageToken is returned by List for a malformed page token.
var ErrInvalidPageToken = pagination.ErrInvalidToken

// List returns paginated requests, newest first, with the next page token
// and the total number of matching requests.
func (s *Store) List(ctx context.Context, f ListFilter) ([]FacilityRequestRecord, string, int, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	filtered := func() *gorm.DB {
		q := s.conn(ctx).Model(&FacilityRequestRecord{})
		if f.Status != "" {
			q = q.Where("status = ?", string(f.Status))
		}
		if f.RequestType != "" {
			q = q.Where("request_type = ?", string(f.RequestType))
		}
		if f.SubmittedBy != "" {
			q = q.Where("submitted_by = ?", f.SubmittedBy)
		}
		if f.DistrictID != nil {
			q = q.Where("district_id = ?", *f.DistrictID)
		}
		return q
	}

	var totalSize int64
	if err := filtered().Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count facility requests: %w", err)
	}

	query := filtered().Order("created_at DESC").Order("id DESC").Limit(pageSize + 1)
	if f.PageToken != "" {
		c, err := pagination.Decode(f.PageToken)
		if err != nil {
			return nil, "", 0, err
		}
		query = c.After(query)
	}

	var records []FacilityRequestRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list facility requests: %w", err)
	}

	records, nextToken := pagination.Page(records, pageSize, func(r FacilityRequestRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return records, nextToken, int(totalSize), nil
}

// TransitionStatus moves a request from one status to another only if it is
// still in from. It reports false when another writer got there first.
func (s *Store) TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	result := s.conn(ctx).Model(&FacilityRequestRecord{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now()})
	if result.Error != nil {
		return false, fmt.Errorf("transition facility request: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SetPromotionResult records the facility unit and identifier a promotion
// produced.
func (s *Store) SetPromotionResult(ctx context.Context, id string, facilityID uint, identifier string) error {
	err := s.conn(ctx).Model(&FacilityRequestRecord{}).Where("id = ?", id).
		Updates(map[string]any{"facility_id": facilityID, "registry_identifier": identifier}).Error
	if err != nil {
		return fmt.Errorf("record promotion result: %w", err)
	}
	return nil
}

// AppendTracking adds a history row.
func (s *Store) AppendTracking(ctx context.Context, rec *StatusTrackingRecord) error {
	if err := s.conn(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append status tracking: %w", err)
	}
	return nil
}

// ListTracking returns the history of a request, oldest first.
func (s *Store) ListTracking(ctx context.Context, requestID string) ([]StatusTrackingRecord, error) {
	var recs []StatusTrackingRecord
	if err := s.conn(ctx).Where("request_id = ?", requestID).Order("id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list status tracking: %w", err)
	}
	return recs, nil
}

// Delete removes a request and its history.
func (s *Store) Delete(ctx context.Context, id string) error {
	db := s.conn(ctx)
	if err := db.Where("request_id = ?", id).Delete(&StatusTrackingRecord{}).Error; err != nil {
		return fmt.Errorf("delete status tracking: %w", err)
	}
	if err := db.Where("id = ?", id).Delete(&FacilityRequestRecord{}).Error; err != nil {
		return fmt.Errorf("delete facility request: %w", err)
	}
	return nil
}
