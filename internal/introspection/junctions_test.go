package introspection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoquery/internal/metadata"
)

func TestForeignKeyConstraints_GroupsByConstraintName(t *testing.T) {
	table := Table{
		Name: "order_lines",
		ForeignKeys: []ForeignKey{
			{ColumnName: "order_no", ReferencedTable: "orders", ReferencedColumn: "no", ConstraintName: "fk_order", OrdinalPosition: 2},
			{ColumnName: "sku", ReferencedTable: "products", ReferencedColumn: "sku", ConstraintName: "fk_product", OrdinalPosition: 1},
			{ColumnName: "order_region", ReferencedTable: "orders", ReferencedColumn: "region", ConstraintName: "fk_order", OrdinalPosition: 1},
		},
	}

	constraints := ForeignKeyConstraints(table)
	require.Len(t, constraints, 2)
	assert.Equal(t, "fk_order", constraints[0].ConstraintName)
	assert.Equal(t, []string{"order_region", "order_no"}, constraints[0].ColumnNames)
	assert.Equal(t, []string{"region", "no"}, constraints[0].ReferencedColumns)
	assert.Equal(t, "fk_product", constraints[1].ConstraintName)
}

func TestForeignKeyConstraints_UnnamedRowsStayIsolated(t *testing.T) {
	table := Table{
		ForeignKeys: []ForeignKey{
			{ColumnName: "a_id", ReferencedTable: "a", ReferencedColumn: "id"},
			{ColumnName: "b_id", ReferencedTable: "b", ReferencedColumn: "id"},
		},
	}
	assert.Len(t, ForeignKeyConstraints(table), 2)
}

func junctionSchema(extra ...Column) *Schema {
	cols := []Column{
		{Name: "user_id", IsPrimaryKey: true},
		{Name: "role_id", IsPrimaryKey: true},
	}
	cols = append(cols, extra...)
	return &Schema{Tables: []Table{
		{Name: "roles", Columns: []Column{{Name: "id", IsPrimaryKey: true}}},
		{
			Name:    "user_roles",
			Columns: cols,
			ForeignKeys: []ForeignKey{
				{ColumnName: "user_id", ReferencedTable: "users", ReferencedColumn: "id", ConstraintName: "fk_a"},
				{ColumnName: "role_id", ReferencedTable: "roles", ReferencedColumn: "id", ConstraintName: "fk_b"},
			},
		},
		{Name: "users", Columns: []Column{{Name: "id", IsPrimaryKey: true}}},
	}}
}

func TestClassifyJunctions(t *testing.T) {
	junctions := ClassifyJunctions(junctionSchema())
	require.Contains(t, junctions, "user_roles")
	j := junctions["user_roles"]
	assert.Equal(t, "roles", j.Left.ReferencedTable)
	assert.Equal(t, "users", j.Right.ReferencedTable)
}

func TestClassifyJunctions_AttributeTableIsEntity(t *testing.T) {
	schema := junctionSchema(Column{Name: "granted_at"})
	assert.Empty(t, ClassifyJunctions(schema))

	entities, err := BuildMetadata(context.Background(), schema, BuildOptions{})
	require.NoError(t, err)
	require.Len(t, entities, 3)

	registry := metadata.NewRegistry()
	require.NoError(t, registry.Register(entities...))
	userRole, err := registry.Entity("UserRole")
	require.NoError(t, err)
	assert.Equal(t, []string{"userId", "roleId"}, userRole.Identifier)
	_, ok := userRole.Association("user")
	assert.True(t, ok)
	_, ok = userRole.Association("role")
	assert.True(t, ok)

	user, err := registry.Entity("User")
	require.NoError(t, err)
	_, ok = user.Association("userRoles")
	assert.True(t, ok)
}

func TestClassifyJunctions_NullableColumnIsNotJunction(t *testing.T) {
	schema := junctionSchema()
	schema.Tables[1].Columns[0].IsNullable = true
	assert.Empty(t, ClassifyJunctions(schema))
}

func TestBuildMetadata_SelfReference(t *testing.T) {
	schema := &Schema{Tables: []Table{{
		Name: "categories",
		Columns: []Column{
			{Name: "id", IsPrimaryKey: true},
			{Name: "parent_id", IsNullable: true},
		},
		ForeignKeys: []ForeignKey{
			{ColumnName: "parent_id", ReferencedTable: "categories", ReferencedColumn: "id", ConstraintName: "fk_parent"},
		},
	}}}

	entities, err := BuildMetadata(context.Background(), schema, BuildOptions{Namespace: "shop"})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	category := entities[0]
	assert.Equal(t, "shop.Category", category.Name)

	parent, ok := category.Association("parent")
	require.True(t, ok)
	assert.Equal(t, metadata.ManyToOne, parent.Kind)
	children, ok := category.Association("categories")
	require.True(t, ok)
	assert.Equal(t, metadata.OneToMany, children.Kind)
	assert.Equal(t, []string{"parent_id"}, children.RemoteColumns)
}
