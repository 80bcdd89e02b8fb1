package hierarchy

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LevelRecord is a GORM model for one rank of the administrative hierarchy.
// Sequence numbers are unique and contiguous from 1 (National=1 ... Facility=N).
type LevelRecord struct {
	ID             uint      `gorm:"primaryKey;column:id"`
	Name           string    `gorm:"column:name;size:128;not null"`
	SequenceNumber int       `gorm:"column:sequence_number;uniqueIndex:idx_level_sequence;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (LevelRecord) TableName() string { return "admin_levels" }

// UnitRecord is a GORM model for a node of the hierarchy tree.
//
// Children are never stored; they are the units whose ParentID points here.
// MaterializedPath lists the ids from the root down to and including this
// unit, e.g. "/1/4/9/".
type UnitRecord struct {
	ID               uint      `gorm:"primaryKey;column:id"`
	Name             string    `gorm:"column:name;size:255;not null"`
	Code             *string   `gorm:"column:code;size:64;index:idx_unit_code"`
	LevelID          uint      `gorm:"column:level_id;index:idx_unit_level;not null"`
	ParentID         *uint     `gorm:"column:parent_id;index:idx_unit_parent"`
	MaterializedPath string    `gorm:"column:materialized_path;size:512;index:idx_unit_path"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (UnitRecord) TableName() string { return "admin_units" }

// Level is the API-facing level type.
type Level struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// Unit is the API-facing administrative unit type.
type Unit struct {
	ID               uint    `json:"id"`
	Name             string  `json:"name"`
	Code             *string `json:"code,omitempty"`
	LevelID          uint    `json:"levelId"`
	ParentID         *uint   `json:"parentId,omitempty"`
	MaterializedPath string  `json:"materializedPath"`
	CreatedAt        string  `json:"createdAt"`
	UpdatedAt        string  `json:"updatedAt"`
}

// UnitList is a paginated list of units.
type UnitList struct {
	Units         []Unit `json:"units"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// ToLevel converts a record to the API type.
func ToLevel(rec *LevelRecord) Level {
	return Level{ID: rec.ID, Name: rec.Name, SequenceNumber: rec.SequenceNumber}
}

// ToUnit converts a record to the API type.
func ToUnit(rec *UnitRecord) Unit {
	return Unit{
		ID:               rec.ID,
		Name:             rec.Name,
		Code:             rec.Code,
		LevelID:          rec.LevelID,
		ParentID:         rec.ParentID,
		MaterializedPath: rec.MaterializedPath,
		CreatedAt:        rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        rec.UpdatedAt.Format(time.RFC3339),
	}
}

// ToUnits converts a slice of records to API types.
func ToUnits(recs []UnitRecord) []Unit {
	out := make([]Unit, len(recs))
	for i := range recs {
		out[i] = ToUnit(&recs[i])
	}
	return out
}

// PathFor returns the materialized path of unit id placed under parent.
// A nil parent yields a root path.
func PathFor(parent *UnitRecord, id uint) string {
	if parent == nil {
		return fmt.Sprintf("/%d/", id)
	}
	return fmt.Sprintf("%s%d/", parent.MaterializedPath, id)
}

// ParsePath decodes a materialized path into its ids, root first.
func ParsePath(path string) ([]uint, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("empty materialized path %q", path)
	}
	parts := strings.Split(trimmed, "/")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 0)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("malformed materialized path %q", path)
		}
		ids = append(ids, uint(n))
	}
	return ids, nil
}
