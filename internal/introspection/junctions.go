package introspection

import (
	"fmt"
	"sort"
)

// ForeignKeyConstraint groups per-column KEY_COLUMN_USAGE rows into one ordered constraint.
type ForeignKeyConstraint struct {
	ConstraintName    string
	ReferencedTable   string
	ColumnNames       []string
	ReferencedColumns []string
}

// ForeignKeyConstraints returns the table's FK constraints ordered by constraint name.
// Rows without a constraint name are never merged with each other.
func ForeignKeyConstraints(table Table) []ForeignKeyConstraint {
	if len(table.ForeignKeys) == 0 {
		return nil
	}

	type keyed struct {
		key string
		fk  ForeignKey
	}
	rows := make([]keyed, len(table.ForeignKeys))
	for i, fk := range table.ForeignKeys {
		key := fk.ConstraintName
		if key == "" {
			key = fmt.Sprintf("__unnamed_%d", i)
		}
		rows[i] = keyed{key: key, fk: fk}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].key != rows[j].key {
			return rows[i].key < rows[j].key
		}
		return rows[i].fk.OrdinalPosition < rows[j].fk.OrdinalPosition
	})

	var result []ForeignKeyConstraint
	for i, row := range rows {
		if i == 0 || rows[i-1].key != row.key {
			result = append(result, ForeignKeyConstraint{
				ConstraintName:  row.fk.ConstraintName,
				ReferencedTable: row.fk.ReferencedTable,
			})
		}
		last := &result[len(result)-1]
		last.ColumnNames = append(last.ColumnNames, row.fk.ColumnName)
		last.ReferencedColumns = append(last.ReferencedColumns, row.fk.ReferencedColumn)
	}
	return result
}

// Junction describes a pure junction table: two foreign keys to different tables,
// a primary key made of exactly those columns and nothing else. Pure junctions are
// not mapped as entities; they back many-to-many associations instead.
type Junction struct {
	Table string
	// Left and Right are ordered by referenced table name.
	Left  ForeignKeyConstraint
	Right ForeignKeyConstraint
}

// ClassifyJunctions returns the pure junction tables of schema keyed by table name.
func ClassifyJunctions(schema *Schema) map[string]Junction {
	result := make(map[string]Junction)
	for _, table := range schema.Tables {
		if table.IsView {
			continue
		}
		if j, ok := classifyJunction(schema, table); ok {
			result[table.Name] = j
		}
	}
	return result
}

func classifyJunction(schema *Schema, table Table) (Junction, bool) {
	fks := ForeignKeyConstraints(table)
	if len(fks) != 2 {
		return Junction{}, false
	}
	left, right := fks[0], fks[1]
	if left.ReferencedTable == right.ReferencedTable {
		return Junction{}, false
	}
	if schema.Table(left.ReferencedTable) == nil || schema.Table(right.ReferencedTable) == nil {
		return Junction{}, false
	}

	fkCols := make(map[string]bool)
	for _, fk := range fks {
		for _, col := range fk.ColumnNames {
			fkCols[col] = true
		}
	}
	pkCols := 0
	for _, col := range table.Columns {
		if !fkCols[col.Name] || col.IsNullable {
			// Extra columns make an attribute junction, which stays a regular entity.
			return Junction{}, false
		}
		if col.IsPrimaryKey {
			pkCols++
		}
	}
	if pkCols != len(fkCols) {
		return Junction{}, false
	}

	if left.ReferencedTable > right.ReferencedTable {
		left, right = right, left
	}
	return Junction{Table: table.Name, Left: left, Right: right}, true
}
