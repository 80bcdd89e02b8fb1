package workflow

import (
	"time"

	"github.com/openhfr/facility-registry/pkg/registry"
)

// FacilityRequestRecord is the GORM model for a proposed facility change.
// Status only moves through the approval table or to rejected.
type FacilityRequestRecord struct {
	ID          string      `gorm:"primaryKey;column:id;type:varchar(36)"`
	RequestType RequestType `gorm:"column:request_type;size:32;index:idx_request_type;not null"`
	Status      Status      `gorm:"column:status;size:32;index:idx_request_status;not null"`
	// Role is the submitter's role at submission time.
	Role        Role             `gorm:"column:role;size:32;not null"`
	Details     registry.Details `gorm:"embedded"`
	RegionID    *uint            `gorm:"column:region_id"`
	DistrictID  *uint            `gorm:"column:district_id;index:idx_request_district"`
	SubcountyID *uint            `gorm:"column:subcounty_id"`
	// FacilityID is the existing facility unit for update and deactivation
	// requests, and the created unit once an addition is published.
	FacilityID         *uint           `gorm:"column:facility_id;index:idx_request_facility"`
	Reason             string          `gorm:"column:reason;type:text"`
	Documents          JSONStringSlice `gorm:"column:documents;type:text"`
	SubmittedBy        string          `gorm:"column:submitted_by;size:255;index:idx_request_submitter;not null"`
	RegistryIdentifier string          `gorm:"column:registry_identifier;size:64"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_request_created"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (FacilityRequestRecord) TableName() string { return "facility_requests" }

// StatusTrackingRecord is one append-only history row of a request.
type StatusTrackingRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement;column:id"`
	RequestID  string    `gorm:"column:request_id;type:varchar(36);index:idx_tracking_request;not null"`
	Status     Status    `gorm:"column:status;size:32;not null"`
	Comments   string    `gorm:"column:comments;type:text"`
	OwnerID    string    `gorm:"column:owner_id;size:255"`
	ApprovedBy *string   `gorm:"column:approved_by;size:255"`
	RejectedBy *string   `gorm:"column:rejected_by;size:255"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (StatusTrackingRecord) TableName() string { return "status_tracking" }

// FacilityRequest is the API-facing request.
type FacilityRequest struct {
	ID          string      `json:"id"`
	RequestType RequestType `json:"requestType"`
	Status      Status      `json:"status"`
	Role        Role        `json:"role"`
	registry.Details
	RegionID           *uint    `json:"regionId,omitempty"`
	DistrictID         *uint    `json:"districtId,omitempty"`
	SubcountyID        *uint    `json:"subcountyId,omitempty"`
	FacilityID         *uint    `json:"facilityId,omitempty"`
	Reason             string   `json:"reason,omitempty"`
	Documents          []string `json:"documents,omitempty"`
	SubmittedBy        string   `json:"submittedBy"`
	RegistryIdentifier string   `json:"registryIdentifier,omitempty"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

// FacilityRequestList is a paginated list of requests.
type FacilityRequestList struct {
	Requests      []FacilityRequest `json:"requests"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
	TotalSize     int               `json:"totalSize"`
}

// StatusEntry is the API-facing history row.
type StatusEntry struct {
	ID         uint    `json:"id"`
	Status     Status  `json:"status"`
	Comments   string  `json:"comments,omitempty"`
	OwnerID    string  `json:"ownerId,omitempty"`
	ApprovedBy *string `json:"approvedBy,omitempty"`
	RejectedBy *string `json:"rejectedBy,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

// ToFacilityRequest converts a record for API output.
func ToFacilityRequest(rec *FacilityRequestRecord) FacilityRequest {
	return FacilityRequest{
		ID:                 rec.ID,
		RequestType:        rec.RequestType,
		Status:             rec.Status,
		Role:               rec.Role,
		Details:            rec.Details,
		RegionID:           rec.RegionID,
		DistrictID:         rec.DistrictID,
		SubcountyID:        rec.SubcountyID,
		FacilityID:         rec.FacilityID,
		Reason:             rec.Reason,
		Documents:          rec.Documents,
		SubmittedBy:        rec.SubmittedBy,
		RegistryIdentifier: rec.RegistryIdentifier,
		CreatedAt:          rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toStatusEntries(recs []StatusTrackingRecord) []StatusEntry {
	out := make([]StatusEntry, len(recs))
	for i, rec := range recs {
		out[i] = StatusEntry{
			ID:         rec.ID,
			Status:     rec.Status,
			Comments:   rec.Comments,
			OwnerID:    rec.OwnerID,
			ApprovedBy: rec.ApprovedBy,
			RejectedBy: rec.RejectedBy,
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return out
}
