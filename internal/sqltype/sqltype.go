// Package sqltype classifies SQL data types into the value kinds the repository
// uses when binding filter values and hydrating scanned rows.
package sqltype

import (
	"fmt"
	"strings"
)

// Kind is the value category of a mapped field.
type Kind int

const (
	// KindString is the default kind for text, enum and unknown SQL types.
	KindString Kind = iota
	// KindInt represents integer numeric types.
	KindInt
	// KindFloat represents floating-point and fixed-point numeric types.
	KindFloat
	// KindBool represents boolean types.
	KindBool
	// KindTime represents date and time types.
	KindTime
	// KindBytes represents binary types that must stay []byte after scanning.
	KindBytes
	// KindJSON represents JSON documents.
	KindJSON
	// KindUUID represents UUID values (textual or 16-byte binary storage).
	KindUUID
)

var kindNames = map[Kind]string{
	KindString: "string",
	KindInt:    "int",
	KindFloat:  "float",
	KindBool:   "bool",
	KindTime:   "time",
	KindBytes:  "bytes",
	KindJSON:   "json",
	KindUUID:   "uuid",
}

// FromDataType converts a SQL data type string to its value kind.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching,
// so both INFORMATION_SCHEMA.COLUMNS.DATA_TYPE and COLUMN_TYPE are accepted.
func FromDataType(sqlType string) Kind {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT",
		"INTEGER", "BIGINT", "SERIAL", "BIGSERIAL", "BIT":
		return KindInt
	case "FLOAT", "DOUBLE", "REAL", "DOUBLE PRECISION",
		"DECIMAL", "NUMERIC":
		return KindFloat
	case "BOOL", "BOOLEAN":
		return KindBool
	case "DATE", "DATETIME", "TIMESTAMP", "TIMESTAMPTZ", "TIME", "YEAR":
		return KindTime
	case "BLOB", "TINYBLOB", "MEDIUMBLOB", "LONGBLOB",
		"BINARY", "VARBINARY", "BYTEA":
		return KindBytes
	case "JSON", "JSONB":
		return KindJSON
	case "UUID":
		return KindUUID
	default:
		return KindString
	}
}

// ParseKind parses a kind name as written in metadata manifests ("int", "uuid", ...).
// An empty name is KindString.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return KindString, nil
	}
	for kind, kindName := range kindNames {
		if kindName == normalized {
			return kind, nil
		}
	}
	return KindString, fmt.Errorf("unknown field kind %q", name)
}

// String returns the manifest name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "string"
}

// KeepsBytes reports whether scanned []byte values must not be converted to strings.
func (k Kind) KeepsBytes() bool {
	return k == KindBytes
}
