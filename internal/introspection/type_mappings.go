package introspection

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strconv"
	"strings"

	"repoquery/internal/sqltype"
)

// TypeOverrides maps SQL table glob patterns to column glob patterns.
// Patterns are matched case-insensitively against SQL names.
type TypeOverrides struct {
	UUID map[string][]string `mapstructure:"uuid"`
	Bool map[string][]string `mapstructure:"bool"`
}

// Apply marks matched columns with the overriding kind.
func (o TypeOverrides) Apply(schema *Schema) error {
	if err := ApplyUUIDTypeOverrides(schema, o.UUID); err != nil {
		return err
	}
	return ApplyBoolTypeOverrides(schema, o.Bool)
}

// ApplyUUIDTypeOverrides marks matched columns as KindUUID. Only BINARY(16) and
// CHAR/VARCHAR(>=36) columns can hold UUIDs.
func ApplyUUIDTypeOverrides(schema *Schema, patterns map[string][]string) error {
	return applyOverrides(schema, patterns, sqltype.KindUUID, validateUUIDOverrideColumn)
}

// ApplyBoolTypeOverrides marks matched TINYINT(1) columns as KindBool.
func ApplyBoolTypeOverrides(schema *Schema, patterns map[string][]string) error {
	return applyOverrides(schema, patterns, sqltype.KindBool, validateBoolOverrideColumn)
}

func applyOverrides(schema *Schema, patterns map[string][]string, kind sqltype.Kind, validate func(Column) error) error {
	if schema == nil || len(patterns) == 0 {
		return nil
	}
	for ti := range schema.Tables {
		table := &schema.Tables[ti]
		columnPatterns := mergePatterns(patterns, table.Name)
		if len(columnPatterns) == 0 {
			continue
		}
		for ci := range table.Columns {
			col := &table.Columns[ci]
			if !matchesAny(col.Name, columnPatterns) {
				continue
			}
			if err := validate(*col); err != nil {
				return fmt.Errorf("invalid %s mapping for %s.%s: %w", kind, table.Name, col.Name, err)
			}
			col.Kind = kind
		}
	}
	return nil
}

func mergePatterns(patterns map[string][]string, table string) []string {
	tableLower := strings.ToLower(table)
	keys := make([]string, 0, len(patterns))
	for key := range patterns {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	combined := make([]string, 0)
	for _, key := range keys {
		pattern := strings.ToLower(strings.TrimSpace(key))
		if pattern == "" {
			continue
		}
		matched, err := path.Match(pattern, tableLower)
		if err != nil || !matched {
			continue
		}
		combined = append(combined, patterns[key]...)
	}
	slices.Sort(combined)
	return slices.Compact(combined)
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func validateUUIDOverrideColumn(col Column) error {
	baseType := strings.ToLower(strings.TrimSpace(col.DataType))
	switch baseType {
	case "binary", "varbinary":
		length, ok := sqlTypeLength(col)
		if !ok || length != 16 {
			return fmt.Errorf("%s requires length 16 for UUID binary storage", strings.ToUpper(baseType))
		}
		return nil
	case "char", "varchar":
		length, ok := sqlTypeLength(col)
		if !ok || length < 36 {
			return fmt.Errorf("%s requires length >= 36 for UUID text storage", strings.ToUpper(baseType))
		}
		return nil
	default:
		return fmt.Errorf("unsupported SQL type %q for UUID mapping", col.DataType)
	}
}

func validateBoolOverrideColumn(col Column) error {
	length, ok := sqlTypeLength(col)
	if !strings.EqualFold(strings.TrimSpace(col.DataType), "tinyint") || !ok || length != 1 {
		return fmt.Errorf("expected tinyint(1), got %q", col.ColumnType)
	}
	return nil
}

func sqlTypeLength(col Column) (int, bool) {
	typeSpec := strings.TrimSpace(col.ColumnType)
	if typeSpec == "" {
		typeSpec = strings.TrimSpace(col.DataType)
	}
	start := strings.Index(typeSpec, "(")
	end := strings.Index(typeSpec, ")")
	if start == -1 || end == -1 || end <= start+1 {
		return 0, false
	}
	lengthSpec := strings.TrimSpace(typeSpec[start+1 : end])
	if idx := strings.Index(lengthSpec, ","); idx != -1 {
		lengthSpec = strings.TrimSpace(lengthSpec[:idx])
	}
	length, err := strconv.Atoi(lengthSpec)
	if err != nil {
		return 0, false
	}
	return length, true
}
