package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a facility request. Values outside the
// enumeration are rejected when decoded from JSON or read from the database.
type Status string

const (
	StatusInitiated        Status = "initiated"
	StatusDistrictApproved Status = "district_approved"
	StatusPlanningApproved Status = "planning_approved"
	StatusMOHVerified      Status = "moh_verified"
	StatusPublished        Status = "published"
	StatusRejected         Status = "rejected"
)

var allStatuses = []Status{
	StatusInitiated, StatusDistrictApproved, StatusPlanningApproved,
	StatusMOHVerified, StatusPublished, StatusRejected,
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown request status %q", s)
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// Scan implements sql.Scanner.
func (s *Status) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return fmt.Errorf("scan status: %w", err)
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}
	return string(s), nil
}

// UnmarshalJSON rejects unknown statuses.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// RequestType is the kind of change a request proposes.
type RequestType string

const (
	TypeAddition     RequestType = "addition"
	TypeUpdate       RequestType = "update"
	TypeDeactivation RequestType = "deactivation"
)

// ParseRequestType converts s into a RequestType, ignoring case.
func ParseRequestType(s string) (RequestType, error) {
	switch RequestType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeAddition:
		return TypeAddition, nil
	case TypeUpdate:
		return TypeUpdate, nil
	case TypeDeactivation:
		return TypeDeactivation, nil
	}
	return "", fmt.Errorf("unknown request type %q", s)
}

// Scan implements sql.Scanner.
func (t *RequestType) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return fmt.Errorf("scan request type: %w", err)
	}
	rt, err := ParseRequestType(raw)
	if err != nil {
		return err
	}
	*t = rt
	return nil
}

// Value implements driver.Valuer.
func (t RequestType) Value() (driver.Value, error) {
	if _, err := ParseRequestType(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

// UnmarshalJSON rejects unknown request types.
func (t *RequestType) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	rt, err := ParseRequestType(raw)
	if err != nil {
		return err
	}
	*t = rt
	return nil
}

// Role is the submitter's role, recorded at submission time.
type Role string

const (
	RoleDistrict Role = "district"
	RolePrivate  Role = "private"
	RoleOther    Role = "other"
)

// RoleFromCaller maps a caller role onto the submitter roles the workflow
// distinguishes. Anything that is not district or private is other.
func RoleFromCaller(role string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleDistrict:
		return RoleDistrict
	case RolePrivate:
		return RolePrivate
	default:
		return RoleOther
	}
}

// Scan implements sql.Scanner.
func (r *Role) Scan(value any) error {
	raw, err := scanString(value)
	if err != nil {
		return fmt.Errorf("scan role: %w", err)
	}
	switch Role(raw) {
	case RoleDistrict, RolePrivate, RoleOther:
		*r = Role(raw)
		return nil
	}
	return fmt.Errorf("unknown submitter role %q", raw)
}

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	raw, err := scanString(value)
	if err != nil {
		return fmt.Errorf("scan string slice: %w", err)
	}
	return json.Unmarshal([]byte(raw), s)
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}
