// Package webhook delivers signed facility events to registered external
// systems and verifies the events those systems send back.
package webhook

import (
	"encoding/json"
	"time"
)

// Event names.
const (
	EventFacilityCreated     = "facility.created"
	EventFacilityUpdated     = "facility.updated"
	EventFacilityDeleted     = "facility.deleted"
	EventFacilityDeactivated = "facility.deactivated"
)

// DefaultInboundEvents is the inbound allow-list used when none is configured.
var DefaultInboundEvents = []string{EventFacilityCreated, EventFacilityUpdated, EventFacilityDeleted}

// SystemRecord is the GORM model for a subscriber system.
type SystemRecord struct {
	ID          string    `gorm:"primaryKey;column:id;size:36"`
	Name        string    `gorm:"column:name;size:255;not null"`
	CallbackURL string    `gorm:"column:callback_url;size:1024;not null"`
	APIKey      string    `gorm:"column:api_key;size:128;uniqueIndex:idx_system_api_key;not null"`
	Secret      string    `gorm:"column:secret;size:255;not null" json:"-"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (SystemRecord) TableName() string { return "external_systems" }

// ReceiptRecord is one verified inbound event.
type ReceiptRecord struct {
	ID         string    `gorm:"primaryKey;column:id;size:36" json:"id"`
	SystemID   string    `gorm:"column:system_id;size:36;index:idx_receipt_system" json:"systemId"`
	Event      string    `gorm:"column:event;size:64;index:idx_receipt_event" json:"event"`
	Timestamp  string    `gorm:"column:event_timestamp;size:64" json:"timestamp"`
	Payload    string    `gorm:"column:payload;type:text" json:"payload"`
	ReceivedAt time.Time `gorm:"column:received_at;index:idx_receipt_received" json:"receivedAt"`
}

// TableName returns the GORM table name.
func (ReceiptRecord) TableName() string { return "webhook_receipts" }

// System is the API-facing system. The secret is never part of it.
type System struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CallbackURL string `json:"callbackUrl"`
	APIKey      string `json:"apiKey"`
	IsActive    bool   `json:"isActive"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// SystemWithSecret is returned once, when a system is created or its secret
// is rotated.
type SystemWithSecret struct {
	System
	Secret string `json:"secret"`
}

// ToSystem converts a record to the API type.
func ToSystem(rec *SystemRecord) System {
	return System{
		ID:          rec.ID,
		Name:        rec.Name,
		CallbackURL: rec.CallbackURL,
		APIKey:      rec.APIKey,
		IsActive:    rec.IsActive,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   rec.UpdatedAt.Format(time.RFC3339),
	}
}

// Envelope is the body of every webhook call.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Result is the outcome of one delivery.
type Result struct {
	SystemID   string `json:"systemId"`
	SystemName string `json:"systemName"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// Summary aggregates the results of a broadcast.
type Summary struct {
	Event        string   `json:"event"`
	SuccessCount int      `json:"successCount"`
	FailedCount  int      `json:"failedCount"`
	Results      []Result `json:"results"`
}
