// Package pagination implements keyset page tokens for lists ordered by
// created_at DESC, id DESC.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidToken is returned by Decode for a malformed page token.
var ErrInvalidToken = errors.New("invalid page token")

// Cursor is the position of the last row on a page. Rows sharing CreatedAt
// are told apart by ID.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode returns the opaque page token for c.
func (c Cursor) Encode() string {
	raw := c.CreatedAt.Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: missing id", ErrInvalidToken)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return Cursor{CreatedAt: t, ID: id}, nil
}

// After restricts q to rows that come after c in created_at DESC, id DESC
// order.
func (c Cursor) After(q *gorm.DB) *gorm.DB {
	return q.Where("(created_at < ? OR (created_at = ? AND id < ?))", c.CreatedAt, c.CreatedAt, c.ID)
}

// Page trims rows fetched with limit pageSize+1 to pageSize and returns the
// token for the next page, or "" on the last page.
func Page[T any](rows []T, pageSize int, cursor func(T) Cursor) ([]T, string) {
	if len(rows) <= pageSize {
		return rows, ""
	}
	rows = rows[:pageSize]
	return rows, cursor(rows[pageSize-1]).Encode()
}
