package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/dbtx"
)

// SystemStore persists subscriber systems and inbound receipts.
type SystemStore struct {
	db *gorm.DB
}

// NewSystemStore creates a new SystemStore.
func NewSystemStore(db *gorm.DB) *SystemStore {
	return &SystemStore{db: db}
}

// AutoMigrate creates or updates the webhook tables.
func (s *SystemStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&SystemRecord{}); err != nil {
		return fmt.Errorf("auto-migrate external_systems: %w", err)
	}
	if err := s.db.AutoMigrate(&ReceiptRecord{}); err != nil {
		return fmt.Errorf("auto-migrate webhook_receipts: %w", err)
	}
	return nil
}

// CreateSystemInput holds the fields of a new system. APIKey and Secret are
// generated when empty.
type CreateSystemInput struct {
	Name        string `json:"name"`
	CallbackURL string `json:"callbackUrl"`
	APIKey      string `json:"apiKey,omitempty"`
	Secret      string `json:"secret,omitempty"`
	IsActive    *bool  `json:"isActive,omitempty"`
}

// UpdateSystemInput holds the fields that may change on a system.
type UpdateSystemInput struct {
	Name        *string `json:"name,omitempty"`
	CallbackURL *string `json:"callbackUrl,omitempty"`
	IsActive    *bool   `json:"isActive,omitempty"`
}

// Create validates and inserts a system. A reused API key is a conflict.
func (s *SystemStore) Create(ctx context.Context, in CreateSystemInput) (*SystemRecord, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apierr.Validation(apierr.CodeInvalidInput, "system name is required")
	}
	if err := validateCallbackURL(in.CallbackURL); err != nil {
		return nil, err
	}

	rec := &SystemRecord{
		ID:          uuid.New().String(),
		Name:        name,
		CallbackURL: strings.TrimRight(in.CallbackURL, "/"),
		APIKey:      strings.TrimSpace(in.APIKey),
		Secret:      in.Secret,
		IsActive:    true,
	}
	if in.IsActive != nil {
		rec.IsActive = *in.IsActive
	}
	if rec.APIKey == "" {
		rec.APIKey = "hfr_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if rec.Secret == "" {
		secret, err := NewSecret()
		if err != nil {
			return nil, err
		}
		rec.Secret = secret
	}

	// Select every column so an explicit IsActive=false is not replaced by
	// the column default.
	if err := dbtx.Conn(ctx, s.db).Select("*").Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apierr.Conflict(apierr.CodeDuplicateAPIKey, "api key is already registered")
		}
		return nil, fmt.Errorf("create system: %w", err)
	}
	return rec, nil
}

// Get returns a system by id, or nil, nil.
func (s *SystemStore) Get(ctx context.Context, id string) (*SystemRecord, error) {
	var rec SystemRecord
	err := dbtx.Conn(ctx, s.db).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get system: %w", err)
	}
	return &rec, nil
}

// List returns all systems ordered by name.
func (s *SystemStore) List(ctx context.Context) ([]SystemRecord, error) {
	var recs []SystemRecord
	if err := dbtx.Conn(ctx, s.db).Order("name ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}
	return recs, nil
}

// ListActive returns the systems that receive broadcasts.
func (s *SystemStore) ListActive(ctx context.Context) ([]SystemRecord, error) {
	var recs []SystemRecord
	if err := dbtx.Conn(ctx, s.db).Where("is_active = ?", true).
		Order("name ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list active systems: %w", err)
	}
	return recs, nil
}

// GetActiveByAPIKey returns the active system owning apiKey, or nil, nil.
func (s *SystemStore) GetActiveByAPIKey(ctx context.Context, apiKey string) (*SystemRecord, error) {
	var rec SystemRecord
	err := dbtx.Conn(ctx, s.db).Where("api_key = ? AND is_active = ?", apiKey, true).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get system by api key: %w", err)
	}
	return &rec, nil
}

// Update changes a system's name, callback URL or active flag.
func (s *SystemStore) Update(ctx context.Context, id string, in UpdateSystemInput) (*SystemRecord, error) {
	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apierr.Validation(apierr.CodeInvalidInput, "system name must not be empty")
		}
		updates["name"] = name
	}
	if in.CallbackURL != nil {
		if err := validateCallbackURL(*in.CallbackURL); err != nil {
			return nil, err
		}
		updates["callback_url"] = strings.TrimRight(*in.CallbackURL, "/")
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	return s.update(ctx, id, updates)
}

// RotateSecret replaces a system's signing secret and returns the record
// carrying the new one.
func (s *SystemStore) RotateSecret(ctx context.Context, id string) (*SystemRecord, error) {
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, map[string]any{"secret": secret})
}

func (s *SystemStore) update(ctx context.Context, id string, updates map[string]any) (*SystemRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apierr.NotFound("system", id)
	}
	if len(updates) == 0 {
		return rec, nil
	}
	if err := dbtx.Conn(ctx, s.db).Model(&SystemRecord{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update system: %w", err)
	}
	return s.Get(ctx, id)
}

// Delete removes a system.
func (s *SystemStore) Delete(ctx context.Context, id string) error {
	res := dbtx.Conn(ctx, s.db).Where("id = ?", id).Delete(&SystemRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete system: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound("system", id)
	}
	return nil
}

// AppendReceipt stores a verified inbound event.
func (s *SystemStore) AppendReceipt(ctx context.Context, rec *ReceiptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	if err := dbtx.Conn(ctx, s.db).Create(rec).Error; err != nil {
		return fmt.Errorf("append webhook receipt: %w", err)
	}
	return nil
}

// ListReceipts returns the most recent receipts, newest first.
func (s *SystemStore) ListReceipts(ctx context.Context, systemID string, limit int) ([]ReceiptRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := dbtx.Conn(ctx, s.db).Model(&ReceiptRecord{})
	if systemID != "" {
		q = q.Where("system_id = ?", systemID)
	}
	var recs []ReceiptRecord
	if err := q.Order("received_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list webhook receipts: %w", err)
	}
	return recs, nil
}

// NewSecret returns a random 256-bit signing secret, hex encoded.
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func validateCallbackURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apierr.Validation(apierr.CodeInvalidInput, "callback url %q must be an absolute http(s) url", raw)
	}
	return nil
}
