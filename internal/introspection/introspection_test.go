package introspection

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoquery/internal/metadata"
	"repoquery/internal/naming"
	"repoquery/internal/sqltype"
)

var (
	tablesQuery  = regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")
	columnsQuery = regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")
	pkQuery      = regexp.QuoteMeta("AND CONSTRAINT_NAME = 'PRIMARY'")
	fkQuery      = regexp.QuoteMeta("AND REFERENCED_TABLE_NAME IS NOT NULL")
)

func columnRows(cols ...[]any) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE", "IS_NULLABLE"})
	for _, c := range cols {
		rows.AddRow(driverValues(c)...)
	}
	return rows
}

func pkRows(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME"})
	for _, n := range names {
		rows.AddRow(n)
	}
	return rows
}

func fkRows(fks ...[]any) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION"})
	for _, fk := range fks {
		rows.AddRow(driverValues(fk)...)
	}
	return rows
}

func driverValues(vs []any) []driver.Value {
	out := make([]driver.Value, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// expectBlogSchema registers the introspection queries for posts, tags, users and
// the post_tags junction.
func expectBlogSchema(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(tablesQuery).WithArgs("blog").WillReturnRows(
		sqlmock.NewRows([]string{"TABLE_NAME", "TABLE_TYPE"}).
			AddRow("post_tags", "BASE TABLE").
			AddRow("posts", "BASE TABLE").
			AddRow("recent_posts", "VIEW").
			AddRow("tags", "BASE TABLE").
			AddRow("users", "BASE TABLE"),
	)

	mock.ExpectQuery(columnsQuery).WithArgs("blog", "post_tags").WillReturnRows(columnRows(
		[]any{"post_id", "int", "int(11)", "NO"},
		[]any{"tag_id", "int", "int(11)", "NO"},
	))
	mock.ExpectQuery(pkQuery).WithArgs("blog", "post_tags").WillReturnRows(pkRows("post_id", "tag_id"))
	mock.ExpectQuery(fkQuery).WithArgs("blog", "post_tags").WillReturnRows(fkRows(
		[]any{"post_id", "posts", "id", "fk_pt_post", 1},
		[]any{"tag_id", "tags", "id", "fk_pt_tag", 1},
	))

	mock.ExpectQuery(columnsQuery).WithArgs("blog", "posts").WillReturnRows(columnRows(
		[]any{"id", "int", "int(11)", "NO"},
		[]any{"title", "varchar", "varchar(255)", "NO"},
		[]any{"author_id", "int", "int(11)", "YES"},
		[]any{"external_id", "binary", "binary(16)", "YES"},
	))
	mock.ExpectQuery(pkQuery).WithArgs("blog", "posts").WillReturnRows(pkRows("id"))
	mock.ExpectQuery(fkQuery).WithArgs("blog", "posts").WillReturnRows(fkRows(
		[]any{"author_id", "users", "id", "fk_posts_author", 1},
	))

	mock.ExpectQuery(columnsQuery).WithArgs("blog", "recent_posts").WillReturnRows(columnRows(
		[]any{"id", "int", "int(11)", "NO"},
		[]any{"title", "varchar", "varchar(255)", "NO"},
	))

	mock.ExpectQuery(columnsQuery).WithArgs("blog", "tags").WillReturnRows(columnRows(
		[]any{"id", "int", "int(11)", "NO"},
		[]any{"label", "varchar", "varchar(64)", "NO"},
	))
	mock.ExpectQuery(pkQuery).WithArgs("blog", "tags").WillReturnRows(pkRows("id"))
	mock.ExpectQuery(fkQuery).WithArgs("blog", "tags").WillReturnRows(fkRows())

	mock.ExpectQuery(columnsQuery).WithArgs("blog", "users").WillReturnRows(columnRows(
		[]any{"id", "int", "int(11)", "NO"},
		[]any{"name", "varchar", "varchar(255)", "NO"},
		[]any{"is_admin", "tinyint", "tinyint(1)", "NO"},
	))
	mock.ExpectQuery(pkQuery).WithArgs("blog", "users").WillReturnRows(pkRows("id"))
	mock.ExpectQuery(fkQuery).WithArgs("blog", "users").WillReturnRows(fkRows())
}

func TestIntrospectDatabaseContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectBlogSchema(mock)

	schema, err := IntrospectDatabaseContext(context.Background(), db, "blog")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, schema.Tables, 5)
	posts := schema.Table("posts")
	require.NotNil(t, posts)
	assert.False(t, posts.IsView)
	require.Len(t, posts.PrimaryKeyColumns(), 1)
	assert.Equal(t, "id", posts.PrimaryKeyColumns()[0].Name)
	authorID, ok := posts.Column("author_id")
	require.True(t, ok)
	assert.True(t, authorID.IsNullable)
	assert.Equal(t, sqltype.KindInt, authorID.Kind)
	require.Len(t, posts.ForeignKeys, 1)
	assert.Equal(t, "users", posts.ForeignKeys[0].ReferencedTable)

	view := schema.Table("recent_posts")
	require.NotNil(t, view)
	assert.True(t, view.IsView)
	assert.Empty(t, view.PrimaryKeyColumns())
}

func TestIntrospectDatabaseContext_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(tablesQuery).WithArgs("blog").WillReturnError(errors.New("access denied"))

	_, err = IntrospectDatabaseContext(context.Background(), db, "blog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get tables")
	assert.Contains(t, err.Error(), "access denied")
}

func TestIntrospect_BuildsRegistrableEntities(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectBlogSchema(mock)

	overrides := TypeOverrides{
		UUID: map[string][]string{"posts": {"external_id"}},
		Bool: map[string][]string{"*": {"is_*"}},
	}
	entities, err := Introspect(context.Background(), db, "blog", overrides, BuildOptions{
		Namespace: "blog",
		Namer:     naming.Default(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"blog.Post", "blog.RecentPost", "blog.Tag", "blog.User"}, names)

	registry := metadata.NewRegistry()
	require.NoError(t, registry.Register(entities...))

	post, err := registry.Entity("blog.Post")
	require.NoError(t, err)
	assert.Equal(t, "post", post.Alias)
	assert.Equal(t, []string{"id"}, post.Identifier)
	assert.Equal(t, []string{"id", "title", "authorId", "externalId"}, post.FieldNames())

	external, ok := post.Field("externalId")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindUUID, external.Kind)
	assert.True(t, external.BinaryUUID())

	author, ok := post.Association("author")
	require.True(t, ok)
	assert.Equal(t, metadata.ManyToOne, author.Kind)
	assert.Equal(t, "blog.User", author.TargetEntity)
	assert.Equal(t, []string{"author_id"}, author.LocalColumns)
	assert.Equal(t, []string{"id"}, author.RemoteColumns)

	tags, ok := post.Association("tags")
	require.True(t, ok)
	assert.Equal(t, metadata.ManyToMany, tags.Kind)
	assert.Equal(t, "blog.Tag", tags.TargetEntity)
	assert.Equal(t, "post_tags", tags.JoinTable)
	assert.Equal(t, []string{"post_id"}, tags.JoinTableLocalColumns)
	assert.Equal(t, []string{"tag_id"}, tags.JoinTableRemoteColumns)

	tag, err := registry.Entity("blog.Tag")
	require.NoError(t, err)
	posts, ok := tag.Association("posts")
	require.True(t, ok)
	assert.Equal(t, "blog.Post", posts.TargetEntity)
	assert.Equal(t, []string{"tag_id"}, posts.JoinTableLocalColumns)
	assert.Equal(t, []string{"post_id"}, posts.JoinTableRemoteColumns)

	user, err := registry.Entity("blog.User")
	require.NoError(t, err)
	userPosts, ok := user.Association("posts")
	require.True(t, ok)
	assert.Equal(t, metadata.OneToMany, userPosts.Kind)
	assert.Equal(t, []string{"id"}, userPosts.LocalColumns)
	assert.Equal(t, []string{"author_id"}, userPosts.RemoteColumns)

	isAdmin, ok := user.Field("isAdmin")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindBool, isAdmin.Kind)

	recent, err := registry.Entity("blog.RecentPost")
	require.NoError(t, err)
	assert.Empty(t, recent.Identifier)
}
