// Package persistence contains helpers shared by the store implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"example.com/trackme/internal/domain"
)

// DefaultPageSize is used when a listing asks for a non-positive limit.
const DefaultPageSize = 50

// MaxPageSize caps a single listing page.
const MaxPageSize = 500

// EncodeCursor serialises the cursor to an opaque token.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.RecordedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token yields a nil cursor.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("parse cursor time: %w", err)
	}
	return &domain.Cursor{RecordedAt: ts, ID: parts[1]}, nil
}

// ClampLimit normalises a page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// Before reports whether a sample sorts before the cursor position in a newest-first listing.
func Before(recordedAt time.Time, id string, c *domain.Cursor) bool {
	if c == nil {
		return true
	}
	if recordedAt.Equal(c.RecordedAt) {
		return id < c.ID
	}
	return recordedAt.Before(c.RecordedAt)
}
