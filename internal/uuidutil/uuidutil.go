// Package uuidutil normalizes UUID values between their bind/storage forms and the
// canonical lower-case text returned to callers.
package uuidutil

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseString parses common UUID string formats and returns a normalized lower-case UUID.
func ParseString(raw string) (uuid.UUID, string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("invalid UUID value %q", raw)
	}
	return parsed, strings.ToLower(parsed.String()), nil
}

// IsBinaryStorageType reports whether a SQL type stores UUID values as raw bytes.
func IsBinaryStorageType(dataType string) bool {
	baseType := strings.ToLower(strings.TrimSpace(dataType))
	if idx := strings.Index(baseType, "("); idx != -1 {
		baseType = baseType[:idx]
	}
	return baseType == "binary" || baseType == "varbinary"
}

// BindValue converts a filter value for a UUID column into the form stored by the column.
// Binary columns receive the 16 RFC-order bytes, textual columns the canonical string.
// Values that are already bytes pass through unchanged.
func BindValue(value any, binaryStorage bool) (any, error) {
	var raw string
	switch v := value.(type) {
	case []byte:
		return v, nil
	case uuid.UUID:
		raw = v.String()
	case string:
		raw = v
	default:
		return nil, fmt.Errorf("UUID value must be a string, got %T", value)
	}
	parsed, canonical, err := ParseString(raw)
	if err != nil {
		return nil, err
	}
	if binaryStorage {
		out := make([]byte, len(parsed))
		copy(out, parsed[:])
		return out, nil
	}
	return canonical, nil
}

// Canonical converts a scanned UUID column value into its canonical string form.
// Values that cannot be interpreted as a UUID are returned unchanged.
func Canonical(value any) any {
	switch v := value.(type) {
	case []byte:
		if len(v) == 16 {
			if parsed, err := uuid.FromBytes(v); err == nil {
				return parsed.String()
			}
		}
		if _, canonical, err := ParseString(string(v)); err == nil {
			return canonical
		}
		return string(v)
	case string:
		if _, canonical, err := ParseString(v); err == nil {
			return canonical
		}
		return v
	default:
		return value
	}
}
