package hydrate

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoquery/internal/descriptor"
	"repoquery/internal/metadata"
	"repoquery/internal/planner"
	"repoquery/internal/sqltype"
	"repoquery/internal/testutil/blogschema"
)

func postsWithComments(t *testing.T, mode descriptor.HydrationMode) *planner.Plan {
	t.Helper()
	d := descriptor.New().Join("comments", descriptor.RelationOptions{JoinAlias: "c", Fields: []string{"text"}})
	d.Fields = []string{"title"}
	d.HydrationMode = mode
	plan, err := planner.New(blogschema.Registry()).Plan(blogschema.Post, d)
	require.NoError(t, err)
	return plan
}

// post.id, post.title, c.id, c.text
var postCommentRows = [][]any{
	{int64(1), []byte("Go"), int64(10), []byte("first")},
	{int64(1), []byte("Go"), int64(11), []byte("second")},
	{int64(2), []byte("Rust"), nil, nil},
}

func TestRows_ObjectDeduplicatesAndNests(t *testing.T) {
	result, err := Rows(postsWithComments(t, descriptor.HydrateObject), postCommentRows)
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	assert.Nil(t, result.Index)

	first := result.Items[0].(*Entity)
	assert.Equal(t, blogschema.Post, first.Type)
	assert.Equal(t, map[string]any{"id": int64(1), "title": "Go"}, first.Fields)
	require.Contains(t, first.Related, "c")
	comments := first.Related["c"].Items
	require.Len(t, comments, 2)
	assert.Equal(t, blogschema.Comment, comments[0].Type)
	assert.Equal(t, "first", comments[0].Get("text"))
	assert.Equal(t, "second", comments[1].Get("text"))

	second := result.Items[1].(*Entity)
	assert.Equal(t, "Rust", second.Get("title"))
	assert.Empty(t, second.Related["c"].Items, "an unmatched LEFT JOIN contributes no entity")
}

func TestRows_ArrayShape(t *testing.T) {
	result, err := Rows(postsWithComments(t, descriptor.HydrateArray), postCommentRows)
	require.NoError(t, err)

	assert.Equal(t, []any{
		map[string]any{
			"id":    int64(1),
			"title": "Go",
			"c": []any{
				map[string]any{"id": int64(10), "text": "first"},
				map[string]any{"id": int64(11), "text": "second"},
			},
		},
		map[string]any{"id": int64(2), "title": "Rust", "c": []any{}},
	}, result.Items)
}

func TestRows_ScalarShape(t *testing.T) {
	result, err := Rows(postsWithComments(t, descriptor.HydrateScalar), postCommentRows)
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, map[string]any{"post_id": int64(1), "post_title": "Go", "c_id": int64(11), "c_text": "second"}, result.Items[1])
	assert.Equal(t, map[string]any{"post_id": int64(2), "post_title": "Rust", "c_id": nil, "c_text": nil}, result.Items[2])
}

// post.title, c.id, c.text
var titleCommentRows = [][]any{
	{[]byte("Go"), int64(10), []byte("first")},
	{[]byte("Go"), int64(11), []byte("second")},
	{[]byte("Rust"), nil, nil},
}

func TestRows_SingleScalarColumn(t *testing.T) {
	plan := postsWithComments(t, descriptor.HydrateSingleScalar)
	require.Equal(t, "title", plan.Columns[0].Field)

	result, err := Rows(plan, titleCommentRows)
	require.NoError(t, err)
	assert.Equal(t, []any{"Go", "Go", "Rust"}, result.Items)
}

func TestSingleScalar(t *testing.T) {
	plan := postsWithComments(t, descriptor.HydrateSingleScalar)

	value, err := SingleScalar(plan, titleCommentRows[:1])
	require.NoError(t, err)
	assert.Equal(t, "Go", value)

	_, err = SingleScalar(plan, nil)
	assert.ErrorIs(t, err, ErrNoResult)

	_, err = SingleScalar(plan, titleCommentRows)
	assert.ErrorIs(t, err, ErrNonUniqueResult)
}

func TestRows_RootAndJoinIndexBy(t *testing.T) {
	d := descriptor.New().Join("tags", descriptor.RelationOptions{IndexBy: "label"})
	d.Fields = []string{"title"}
	d.IndexBy = "title"
	d.HydrationMode = descriptor.HydrateArray
	plan, err := planner.New(blogschema.Registry()).Plan(blogschema.Post, d)
	require.NoError(t, err)

	// post.id, post.title, tags.id, tags.label
	rows := [][]any{
		{int64(1), "Go", int64(5), "lang"},
		{int64(1), "Go", int64(6), "fast"},
		{int64(2), "Rust", int64(5), "lang"},
	}
	result, err := Rows(plan, rows)
	require.NoError(t, err)
	require.Len(t, result.Index, 2)

	goPost := result.Index["Go"].(map[string]any)
	assert.Equal(t, map[string]any{
		"lang": map[string]any{"id": int64(5), "label": "lang"},
		"fast": map[string]any{"id": int64(6), "label": "fast"},
	}, goPost["tags"])

	objects, err := Rows(withMode(plan, descriptor.HydrateObject), rows)
	require.NoError(t, err)
	rust := objects.Index["Rust"].(*Entity)
	assert.Equal(t, int64(5), rust.Related["tags"].Index["lang"].Get("id"))
}

func TestRows_NestedManyToOne(t *testing.T) {
	d := descriptor.New().
		Join("comments", descriptor.RelationOptions{JoinAlias: "c", Fields: []string{"text"}}).
		Join("c.author", descriptor.RelationOptions{JoinAlias: "ca", Fields: []string{"name"}})
	d.Fields = []string{"title"}
	d.HydrationMode = descriptor.HydrateArray
	plan, err := planner.New(blogschema.Registry()).Plan(blogschema.Post, d)
	require.NoError(t, err)

	// post.id, post.title, c.id, c.text, ca.id, ca.name
	rows := [][]any{
		{int64(1), "Go", int64(10), "first", int64(7), "ann"},
		{int64(1), "Go", int64(11), "second", int64(7), "ann"},
		{int64(1), "Go", int64(12), "anon", nil, nil},
	}
	result, err := Rows(plan, rows)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)

	comments := result.Items[0].(map[string]any)["c"].([]any)
	require.Len(t, comments, 3)
	assert.Equal(t, map[string]any{"id": int64(7), "name": "ann"}, comments[0].(map[string]any)["ca"])
	assert.Equal(t, map[string]any{"id": int64(7), "name": "ann"}, comments[1].(map[string]any)["ca"])
	assert.Nil(t, comments[2].(map[string]any)["ca"])
}

func TestRows_ValueConversion(t *testing.T) {
	reg := metadata.NewRegistry().MustRegister(metadata.Entity{
		Name:       "Blob",
		Table:      "blobs",
		Identifier: []string{"id"},
		Fields: []metadata.Field{
			{Name: "id", Column: "id", DataType: "binary(16)", Kind: sqltype.KindUUID},
			{Name: "payload", Column: "payload", DataType: "blob", Kind: sqltype.KindBytes},
			{Name: "name", Column: "name", DataType: "varchar", Kind: sqltype.KindString},
		},
	})
	d := descriptor.New()
	d.HydrationMode = descriptor.HydrateArray
	plan, err := planner.New(reg).Plan("Blob", d)
	require.NoError(t, err)

	id := uuid.MustParse("8f14e45f-ceea-467a-9af4-0e3b0c1c5f1e")
	result, err := Rows(plan, [][]any{{id[:], []byte{0x01, 0x02}, []byte("blob")}})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{
		"id":      "8f14e45f-ceea-467a-9af4-0e3b0c1c5f1e",
		"payload": []byte{0x01, 0x02},
		"name":    "blob",
	}}, result.Items)
}

func TestRows_ColumnCountMismatch(t *testing.T) {
	_, err := Rows(postsWithComments(t, descriptor.HydrateObject), [][]any{{int64(1)}})
	require.Error(t, err)
}

func withMode(plan *planner.Plan, mode descriptor.HydrationMode) *planner.Plan {
	copied := *plan
	copied.HydrationMode = mode
	return &copied
}
