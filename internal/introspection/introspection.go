// Package introspection discovers schema metadata from a MySQL/TiDB information_schema
// and turns it into entity metadata for the query planner.
package introspection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"repoquery/internal/sqltype"
)

// Column represents a database column
type Column struct {
	Name         string
	DataType     string
	ColumnType   string
	IsNullable   bool
	IsPrimaryKey bool
	// Kind is the value kind used for binding and hydration. Type overrides replace it.
	Kind sqltype.Kind
}

// ForeignKey represents one column of a foreign key constraint
type ForeignKey struct {
	ColumnName       string // e.g., "author_id"
	ReferencedTable  string // e.g., "users"
	ReferencedColumn string // e.g., "id"
	ConstraintName   string // e.g., "posts_ibfk_1"
	OrdinalPosition  int    // Column position within the FK constraint
}

// Table represents a database table
type Table struct {
	Name        string
	IsView      bool
	Columns     []Column
	ForeignKeys []ForeignKey
}

// PrimaryKeyColumns returns the primary key columns in column order.
func (t Table) PrimaryKeyColumns() []Column {
	var cols []Column
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			cols = append(cols, col)
		}
	}
	return cols
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Schema represents the introspected database schema
type Schema struct {
	Database string
	Tables   []Table
}

// Table returns the named table.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// IntrospectDatabaseContext queries information_schema for tables, columns and keys.
func IntrospectDatabaseContext(ctx context.Context, db Queryer, databaseName string) (*Schema, error) {
	ctx, span := startSpan(ctx, "introspection.build_schema",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	schema := &Schema{Database: databaseName}

	tables, err := getTables(ctx, db, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}

	for _, info := range tables {
		columns, err := getColumns(ctx, db, databaseName, info.Name)
		if err != nil {
			recordSpanError(span, err)
			return nil, fmt.Errorf("failed to get columns for %s: %w", info.Name, err)
		}

		var primaryKeys []string
		var foreignKeys []ForeignKey
		if !info.IsView {
			primaryKeys, err = getPrimaryKeys(ctx, db, databaseName, info.Name)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to get primary keys for table %s: %w", info.Name, err)
			}

			foreignKeys, err = getForeignKeys(ctx, db, databaseName, info.Name)
			if err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("failed to get foreign keys for table %s: %w", info.Name, err)
			}
		}

		for i := range columns {
			for _, pk := range primaryKeys {
				if columns[i].Name == pk {
					columns[i].IsPrimaryKey = true
					break
				}
			}
		}

		schema.Tables = append(schema.Tables, Table{
			Name:        info.Name,
			IsView:      info.IsView,
			Columns:     columns,
			ForeignKeys: foreignKeys,
		})
	}

	return schema, nil
}

type tableInfo struct {
	Name   string
	IsView bool
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]tableInfo, error) {
	ctx, span := startSpan(ctx, "introspection.get_tables",
		attribute.String("db.name", databaseName),
	)
	defer span.End()

	query := `
		SELECT TABLE_NAME, TABLE_TYPE
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		AND TABLE_TYPE IN ('BASE TABLE', 'VIEW')
		ORDER BY TABLE_NAME
	`

	rows, err := db.QueryContext(ctx, query, databaseName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []tableInfo
	for rows.Next() {
		var tableName, tableType string
		if err := rows.Scan(&tableName, &tableType); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, tableInfo{
			Name:   tableName,
			IsView: strings.EqualFold(tableType, "VIEW"),
		})
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, databaseName, tableName string) ([]Column, error) {
	ctx, span := startSpan(ctx, "introspection.get_columns",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []Column
	for rows.Next() {
		var col Column
		var isNullable string
		if err := rows.Scan(&col.Name, &col.DataType, &col.ColumnType, &isNullable); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.IsNullable = strings.EqualFold(isNullable, "YES")
		col.Kind = sqltype.FromDataType(col.DataType)
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getPrimaryKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspection.get_primary_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var primaryKeys []string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&columnName); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		primaryKeys = append(primaryKeys, columnName)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return primaryKeys, nil
}

func getForeignKeys(ctx context.Context, db Queryer, databaseName, tableName string) ([]ForeignKey, error) {
	ctx, span := startSpan(ctx, "introspection.get_foreign_keys",
		attribute.String("db.name", databaseName),
		attribute.String("db.table", tableName),
	)
	defer span.End()

	query := `
		SELECT
			COLUMN_NAME,
			REFERENCED_TABLE_NAME,
			REFERENCED_COLUMN_NAME,
			CONSTRAINT_NAME,
			ORDINAL_POSITION
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ?
			AND TABLE_NAME = ?
			AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION
	`

	rows, err := db.QueryContext(ctx, query, databaseName, tableName)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var foreignKeys []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ColumnName, &fk.ReferencedTable,
			&fk.ReferencedColumn, &fk.ConstraintName, &fk.OrdinalPosition); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		foreignKeys = append(foreignKeys, fk)
	}

	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return foreignKeys, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("repoquery/introspection")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
