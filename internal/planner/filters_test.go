package planner

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoquery/internal/descriptor"
	"repoquery/internal/metadata"
	"repoquery/internal/repoerr"
	"repoquery/internal/sqltype"
	"repoquery/internal/testutil/blogschema"
)

func TestFilters_RootFieldsAreAndedEqualities(t *testing.T) {
	d := titleOnly().Where("status", "published").Where("age", 30).Where("title", "Go")
	planned := renderPosts(t, d)
	assertSQLMatches(t, planned.SQL,
		postIDTitle+" WHERE `post`.`age` = ? AND `post`.`status` = ? AND `post`.`title` = ?",
	)
	assertArgsEqual(t, planned.Args, []interface{}{30, "published", "Go"})
}

func TestFilters_RootFieldSequenceRendersIn(t *testing.T) {
	planned := renderPosts(t, titleOnly().Where("id", []int{1, 2, 3}))
	assertSQLMatches(t, planned.SQL, postIDTitle+" WHERE `post`.`id` IN (?,?,?)")
	assertArgsEqual(t, planned.Args, []interface{}{1, 2, 3})
}

func TestFilters_Operators(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    any
		expected string
		args     []interface{}
	}{
		{name: "gt", key: "age:gt", value: 18, expected: "`post`.`age` > ?", args: []interface{}{18}},
		{name: "gte", key: "age:gte", value: 18, expected: "`post`.`age` >= ?", args: []interface{}{18}},
		{name: "lt", key: "age:lt", value: 18, expected: "`post`.`age` < ?", args: []interface{}{18}},
		{name: "lte", key: "age:lte", value: 18, expected: "`post`.`age` <= ?", args: []interface{}{18}},
		{name: "eq", key: "status:eq", value: "draft", expected: "`post`.`status` = ?", args: []interface{}{"draft"}},
		{name: "neq", key: "status:neq", value: "draft", expected: "`post`.`status` <> ?", args: []interface{}{"draft"}},
		{name: "like", key: "title:like", value: "%x%", expected: "`post`.`title` LIKE ?", args: []interface{}{"%x%"}},
		{name: "notLike", key: "title:notLike", value: "%x%", expected: "`post`.`title` NOT LIKE ?", args: []interface{}{"%x%"}},
		{name: "nlike", key: "title:nlike", value: "%x%", expected: "`post`.`title` NOT LIKE ?", args: []interface{}{"%x%"}},
		{name: "null true", key: "deleted:null", value: "true", expected: "`post`.`deleted_at` IS NULL"},
		{name: "null bool", key: "deleted:null", value: true, expected: "`post`.`deleted_at` IS NULL"},
		{name: "null other", key: "deleted:null", value: "no", expected: "`post`.`deleted_at` IS NOT NULL"},
		{name: "null false", key: "deleted:null", value: false, expected: "`post`.`deleted_at` IS NOT NULL"},
		{name: "isNull", key: "deleted:isNull", value: nil, expected: "`post`.`deleted_at` IS NULL"},
		{name: "isNotNull", key: "deleted:isNotNull", value: nil, expected: "`post`.`deleted_at` IS NOT NULL"},
		{name: "in", key: "status:in", value: []string{"a", "b"}, expected: "`post`.`status` IN (?,?)", args: []interface{}{"a", "b"}},
		{name: "in scalar", key: "status:in", value: "a", expected: "`post`.`status` IN (?)", args: []interface{}{"a"}},
		{name: "notIn", key: "status:notIn", value: []any{"a", "b"}, expected: "`post`.`status` NOT IN (?,?)", args: []interface{}{"a", "b"}},
		{name: "between", key: "age:between", value: []int{1, 9}, expected: "`post`.`age` BETWEEN ? AND ?", args: []interface{}{1, 9}},
		{name: "case insensitive", key: "age:GT", value: 1, expected: "`post`.`age` > ?", args: []interface{}{1}},
		{name: "explicit root alias", key: "post.age:gt", value: 1, expected: "`post`.`age` > ?", args: []interface{}{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planned := renderPosts(t, titleOnly().Where(tt.key, tt.value))
			assertSQLMatches(t, planned.SQL, postIDTitle+" WHERE "+tt.expected)
			assertArgsEqual(t, planned.Args, tt.args)
		})
	}
}

func TestFilters_JoinAliasField(t *testing.T) {
	d := titleOnly().
		Join("comments", descriptor.RelationOptions{JoinAlias: "c", Fields: []string{"text"}}).
		Where("c.text:like", "%go%")
	planned := renderPosts(t, d)
	assertSQLMatches(t, planned.SQL,
		"SELECT `post`.`id`, `post`.`title`, `c`.`id`, `c`.`text` FROM `posts` AS `post` "+
			"LEFT JOIN `comments` AS `c` ON `post`.`id` = `c`.`post_id` WHERE `c`.`text` LIKE ?",
	)
	assertArgsEqual(t, planned.Args, []interface{}{"%go%"})
}

func TestFilters_Errors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		kind error
	}{
		{name: "not a field and no operator", key: "badformat", kind: repoerr.ErrInvalidArgument},
		{name: "too many segments", key: "age:gt:lt", kind: repoerr.ErrInvalidArgument},
		{name: "qualified without operator", key: "post.age", kind: repoerr.ErrInvalidArgument},
		{name: "unknown operator", key: "title:unknownop", kind: repoerr.ErrBadMethodCall},
		{name: "unknown operator before unknown field", key: "missing:unknownop", kind: repoerr.ErrBadMethodCall},
		{name: "unknown field", key: "missing:eq", kind: repoerr.ErrUnknownField},
		{name: "unknown alias", key: "x.title:eq", kind: repoerr.ErrUnknownAlias},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestPlanner().Plan(blogschema.Post, titleOnly().Where(tt.key, 1))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestFilters_ValueShapeErrors(t *testing.T) {
	_, err := newTestPlanner().Plan(blogschema.Post, titleOnly().Where("age:gt", []int{1, 2}))
	assert.ErrorIs(t, err, repoerr.ErrInvalidArgument)

	_, err = newTestPlanner().Plan(blogschema.Post, titleOnly().Where("age:between", []int{1}))
	assert.ErrorIs(t, err, repoerr.ErrInvalidArgument)
}

func TestFilters_BinaryUUIDValues(t *testing.T) {
	reg := metadata.NewRegistry().MustRegister(metadata.Entity{
		Name:       "Device",
		Table:      "devices",
		Identifier: []string{"id"},
		Fields: []metadata.Field{
			{Name: "id", Column: "id", DataType: "binary(16)", Kind: sqltype.KindUUID},
			{Name: "ownerId", Column: "owner_id", DataType: "char(36)", Kind: sqltype.KindUUID},
		},
	})
	id := uuid.MustParse("0d0e8e6a-6d3c-4bd6-9c59-2d1f5bb1c1aa")

	plan, err := New(reg).Plan("Device", descriptor.New().
		Where("id", "0D0E8E6A-6D3C-4BD6-9C59-2D1F5BB1C1AA").
		Where("ownerId:in", []string{"0D0E8E6A-6D3C-4BD6-9C59-2D1F5BB1C1AA"}))
	require.NoError(t, err)

	planned, err := plan.ToSQL()
	require.NoError(t, err)
	assertSQLMatches(t, planned.SQL,
		"SELECT `device`.`id`, `device`.`owner_id` FROM `devices` AS `device` WHERE `device`.`id` = ? AND `device`.`owner_id` IN (?)",
	)
	require.Len(t, planned.Args, 2)
	assert.Equal(t, id[:], planned.Args[0])
	assert.Equal(t, id.String(), planned.Args[1])

	_, err = New(reg).Plan("Device", descriptor.New().Where("id", "not-a-uuid"))
	assert.ErrorIs(t, err, repoerr.ErrInvalidArgument)
}

func TestOperators_RegistryIsClosed(t *testing.T) {
	assert.ElementsMatch(t, []string{
		"between", "eq", "gt", "gte", "in", "isNotNull", "isNull", "like", "lt", "lte",
		"neq", "nlike", "notIn", "notLike", "null",
	}, Operators())

	assert.Panics(t, func() {
		newOperatorRegistry(
			operator{name: "eq", build: buildNullCheck},
			operator{name: "EQ", build: buildNullCheck},
		)
	})
	assert.Panics(t, func() {
		newOperatorRegistry(operator{name: "eq"})
	})
}
