// Package registry stores the canonical, published facility records.
// Records are written only by request promotion; the HTTP surface is read-only.
package registry

import (
	"net/mail"
	"strings"
	"time"

	"github.com/openhfr/facility-registry/pkg/apierr"
)

// Details are the descriptive facility fields shared by requests and
// published records.
type Details struct {
	Name         string   `gorm:"column:name;size:255;not null" json:"name"`
	FacilityType string   `gorm:"column:facility_type;size:64" json:"facilityType,omitempty"`
	Ownership    string   `gorm:"column:ownership;size:64" json:"ownership,omitempty"`
	Authority    string   `gorm:"column:authority;size:128" json:"authority,omitempty"`
	Address      string   `gorm:"column:address;size:512" json:"address,omitempty"`
	Phone        string   `gorm:"column:phone;size:64" json:"phone,omitempty"`
	Email        string   `gorm:"column:email;size:255" json:"email,omitempty"`
	Latitude     *float64 `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude    *float64 `gorm:"column:longitude" json:"longitude,omitempty"`
}

// Validate checks the descriptive fields.
func (d *Details) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return apierr.Validation(apierr.CodeInvalidInput, "facility name is required")
	}
	if d.Email != "" {
		if _, err := mail.ParseAddress(d.Email); err != nil {
			return apierr.Validation(apierr.CodeInvalidInput, "invalid email %q", d.Email)
		}
	}
	if (d.Latitude == nil) != (d.Longitude == nil) {
		return apierr.Validation(apierr.CodeInvalidInput, "latitude and longitude must be given together")
	}
	if d.Latitude != nil && (*d.Latitude < -90 || *d.Latitude > 90) {
		return apierr.Validation(apierr.CodeInvalidInput, "latitude %v out of range", *d.Latitude)
	}
	if d.Longitude != nil && (*d.Longitude < -180 || *d.Longitude > 180) {
		return apierr.Validation(apierr.CodeInvalidInput, "longitude %v out of range", *d.Longitude)
	}
	return nil
}

// Record is the GORM model for a published facility. FacilityID is the id of
// the facility's unit in the administrative tree.
type Record struct {
	ID                 uint    `gorm:"primaryKey;column:id"`
	FacilityID         uint    `gorm:"column:facility_id;uniqueIndex:idx_registry_facility;not null"`
	RegistryIdentifier string  `gorm:"column:registry_identifier;size:64;uniqueIndex:idx_registry_identifier;not null"`
	Details            Details `gorm:"embedded"`
	RegionID           *uint   `gorm:"column:region_id;index:idx_registry_region"`
	DistrictID         *uint   `gorm:"column:district_id;index:idx_registry_district"`
	SubcountyID        *uint   `gorm:"column:subcounty_id;index:idx_registry_subcounty"`
	// LastRequestID is the request whose promotion last wrote this record.
	LastRequestID string    `gorm:"column:last_request_id;size:36"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Record) TableName() string { return "registry_records" }

// Facility is the API-facing published facility.
type Facility struct {
	Identifier string `json:"identifier"`
	FacilityID uint   `json:"facilityId"`
	Details
	RegionID      *uint  `json:"regionId,omitempty"`
	DistrictID    *uint  `json:"districtId,omitempty"`
	SubcountyID   *uint  `json:"subcountyId,omitempty"`
	LastRequestID string `json:"lastRequestId,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// FacilityList is a paginated list of facilities.
type FacilityList struct {
	Facilities    []Facility `json:"facilities"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// ToFacility converts a record to the API type.
func ToFacility(rec *Record) Facility {
	return Facility{
		Identifier:    rec.RegistryIdentifier,
		FacilityID:    rec.FacilityID,
		Details:       rec.Details,
		RegionID:      rec.RegionID,
		DistrictID:    rec.DistrictID,
		SubcountyID:   rec.SubcountyID,
		LastRequestID: rec.LastRequestID,
		CreatedAt:     rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     rec.UpdatedAt.Format(time.RFC3339),
	}
}
