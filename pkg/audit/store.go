// Package audit records every mutating call made against the registry API
// and exposes the trail for review.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/pagination"
)

// ErrInvalidPageToken is returned by List for a malformed page token.
var ErrInvalidPageToken = pagination.ErrInvalidToken

// Store is an append-only log of audit events.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the api_audit_events table.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&EventRecord{})
}

// Append writes an event.
func (s *Store) Append(ctx context.Context, event *EventRecord) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Get returns an event by id, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*EventRecord, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return &rec, nil
}

// Filter narrows List.
type Filter struct {
	Actor        string
	ResourceType string
	Outcome      string
	Since        time.Time
	PageSize     int
	PageToken    string
}

// List returns events newest first. The page token is the keyset cursor of
// the last event on the previous page.
func (s *Store) List(ctx context.Context, f Filter) ([]EventRecord, string, int, error) {
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	filtered := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&EventRecord{})
		if f.Actor != "" {
			q = q.Where("actor = ?", f.Actor)
		}
		if f.ResourceType != "" {
			q = q.Where("resource_type = ?", f.ResourceType)
		}
		if f.Outcome != "" {
			q = q.Where("outcome = ?", f.Outcome)
		}
		if !f.Since.IsZero() {
			q = q.Where("created_at >= ?", f.Since)
		}
		return q
	}

	var totalSize int64
	if err := filtered().Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := filtered().Order("created_at DESC").Order("id DESC").Limit(pageSize + 1)
	if f.PageToken != "" {
		c, err := pagination.Decode(f.PageToken)
		if err != nil {
			return nil, "", 0, err
		}
		query = c.After(query)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	records, nextToken := pagination.Page(records, pageSize, func(r EventRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	return records, nextToken, int(totalSize), nil
}

// DeleteOlderThan deletes events created before cutoff and returns how many
// were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
