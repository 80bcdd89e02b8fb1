package audit

import "time"

// Outcomes recorded for an audited call.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
)

// EventRecord is one mutating API call.
type EventRecord struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	RequestID    string `gorm:"type:varchar(128)"`
	Actor        string `gorm:"index;type:varchar(255);not null"`
	Role         string `gorm:"type:varchar(64)"`
	Method       string `gorm:"type:varchar(10);not null"`
	Path         string `gorm:"type:varchar(512);not null"`
	ResourceType string `gorm:"index;type:varchar(64)"`
	ResourceID   string `gorm:"type:varchar(64)"`
	Action       string `gorm:"type:varchar(64)"`
	Outcome      string `gorm:"index;type:varchar(16);not null"`
	StatusCode   int    `gorm:"not null"`
	DurationMS   int64
	CreatedAt    time.Time `gorm:"index;not null"`
}

func (EventRecord) TableName() string { return "api_audit_events" }

// Event is the API representation of an EventRecord.
type Event struct {
	ID           string `json:"id"`
	RequestID    string `json:"requestId,omitempty"`
	Actor        string `json:"actor"`
	Role         string `json:"role,omitempty"`
	Method       string `json:"method"`
	Path         string `json:"path"`
	ResourceType string `json:"resourceType,omitempty"`
	ResourceID   string `json:"resourceId,omitempty"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	StatusCode   int    `json:"statusCode"`
	DurationMS   int64  `json:"durationMs"`
	CreatedAt    string `json:"createdAt"`
}

// EventList is a page of audit events.
type EventList struct {
	Events        []Event `json:"events"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	TotalSize     int     `json:"totalSize"`
}

func toEvent(rec EventRecord) Event {
	return Event{
		ID:           rec.ID,
		RequestID:    rec.RequestID,
		Actor:        rec.Actor,
		Role:         rec.Role,
		Method:       rec.Method,
		Path:         rec.Path,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Action:       rec.Action,
		Outcome:      rec.Outcome,
		StatusCode:   rec.StatusCode,
		DurationMS:   rec.DurationMS,
		CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
	}
}
