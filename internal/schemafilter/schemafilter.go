// Package schemafilter applies allow/deny filters to introspected schemas before
// they become entity metadata.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"repoquery/internal/introspection"
)

// Config controls allow/deny filters for tables and columns.
type Config struct {
	AllowTables      []string            `mapstructure:"allow_tables"`
	DenyTables       []string            `mapstructure:"deny_tables"`
	ScanViewsEnabled bool                `mapstructure:"scan_views_enabled"`
	AllowColumns     map[string][]string `mapstructure:"allow_columns"`
	DenyColumns      map[string][]string `mapstructure:"deny_columns"`
}

// Apply filters tables, columns and foreign keys in place.
// Missing allow lists default to allow-all; deny rules always win.
func Apply(schema *introspection.Schema, cfg Config) {
	if schema == nil {
		return
	}

	allowedTableNames := make(map[string]bool)
	filteredTables := make([]introspection.Table, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		if table.IsView && !cfg.ScanViewsEnabled {
			continue
		}
		if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}
		filteredTables = append(filteredTables, table)
		allowedTableNames[table.Name] = true
	}

	allowedColumnsByTable := make(map[string]map[string]bool, len(filteredTables))
	for i := range filteredTables {
		table := &filteredTables[i]
		allowedColumns := make(map[string]bool)
		filteredColumns := make([]introspection.Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if !columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				continue
			}
			filteredColumns = append(filteredColumns, column)
			allowedColumns[column.Name] = true
		}

		table.Columns = filteredColumns
		allowedColumnsByTable[table.Name] = allowedColumns
	}

	finalTables := make([]introspection.Table, 0, len(filteredTables))
	for _, table := range filteredTables {
		if len(table.Columns) == 0 {
			delete(allowedTableNames, table.Name)
			continue
		}
		finalTables = append(finalTables, table)
	}
	for i := range finalTables {
		table := &finalTables[i]
		table.ForeignKeys = filterForeignKeys(table.ForeignKeys, allowedColumnsByTable[table.Name], allowedTableNames, allowedColumnsByTable)
	}

	schema.Tables = finalTables
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	if matchesAny(column, mergePatterns(deny, table)) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

// mergePatterns collects the column patterns of every table pattern matching table.
func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	var combined []string
	for tablePattern, columns := range patterns {
		if matchesAny(table, []string{tablePattern}) {
			combined = append(combined, columns...)
		}
	}
	slices.Sort(combined)
	return slices.Compact(combined)
}

// filterForeignKeys drops constraints whose local or referenced side was filtered.
// A composite key loses every column when any one of them is dropped.
func filterForeignKeys(fks []introspection.ForeignKey, allowedColumns map[string]bool, allowedTables map[string]bool, allowedColumnsByTable map[string]map[string]bool) []introspection.ForeignKey {
	broken := make(map[string]bool)
	for _, fk := range fks {
		remoteColumns := allowedColumnsByTable[fk.ReferencedTable]
		if !allowedColumns[fk.ColumnName] || !allowedTables[fk.ReferencedTable] || !remoteColumns[fk.ReferencedColumn] {
			broken[fk.ConstraintName] = true
		}
	}

	filtered := make([]introspection.ForeignKey, 0, len(fks))
	for _, fk := range fks {
		if broken[fk.ConstraintName] {
			continue
		}
		filtered = append(filtered, fk)
	}
	return filtered
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
