package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoquery/internal/metadata"
	"repoquery/internal/testutil/blogschema"
)

var blogFixture = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL)`,
	`CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT NOT NULL, status TEXT NOT NULL, age INTEGER NOT NULL,
		author_id INTEGER NOT NULL REFERENCES users(id), deleted_at DATETIME NULL)`,
	`INSERT INTO users (id, name, email) VALUES (1, 'ann', 'ann@example.com'), (2, 'bob', 'bob@example.com')`,
	`INSERT INTO posts (id, title, status, age, author_id, deleted_at) VALUES
		(1, 'Go', 'published', 3, 1, NULL),
		(2, 'Rust', 'draft', 1, 2, NULL),
		(3, 'Zig', 'published', 5, 1, NULL)`,
}

func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, metadata.WriteManifest(&buf, blogschema.Namespace, blogschema.Entities()))
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func writeDatabase(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "blog.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range blogFixture {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func baseArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		"--database.dialect=sqlite",
		"--database.database=" + writeDatabase(t, dir),
		"--metadata.source=manifest",
		"--metadata.manifest_file=" + writeManifest(t, dir),
		"--observability.logging.level=error",
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &out))
	assert.Equal(t, "repoquery dev (none)\n", out.String())
}

func TestRun_FetchAll(t *testing.T) {
	args := append(baseArgs(t),
		"--entity=blog.Post",
		`--descriptor={"parameters":{"status":"published"},"fields":["title"],"sort":{"title":"desc"},"hydration_mode":"array","count_available_rows":true,"limit":1}`,
	)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, []any{map[string]any{"id": float64(3), "title": "Zig"}}, got["items"])
	assert.Equal(t, map[string]any{"total": float64(2), "limit": float64(1)}, got["paginator"])
}

func TestRun_Count(t *testing.T) {
	args := append(baseArgs(t),
		"--entity=blog.Post",
		"--operation=count",
		`--descriptor={"parameters":{"age:gte":3}}`,
	)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))
	assert.JSONEq(t, `{"count": 2}`, out.String())
}

func TestRun_FetchOneScalar(t *testing.T) {
	args := append(baseArgs(t),
		"--entity=blog.Post",
		"--operation=fetch_one",
		"--repository.default_hydration=single_scalar",
		`--descriptor={"parameters":{"title":"Rust"},"fields":["age"]}`,
	)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))
	assert.JSONEq(t, `1`, out.String())
}

func TestRun_Explain(t *testing.T) {
	dir := t.TempDir()
	args := []string{
		"--database.dialect=sqlite",
		"--metadata.source=manifest",
		"--metadata.manifest_file=" + writeManifest(t, dir),
		"--observability.logging.level=error",
		"--entity=blog.Post",
		"--explain",
		`--descriptor={"parameters":{"status":"draft"},"fields":["title"]}`,
	}
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got["sql"], `FROM "posts" AS "post"`)
	assert.Equal(t, []any{"draft"}, got["args"])
	assert.NotContains(t, got, "count_sql")
}

func TestRun_ExplainSortFollowsJSONOrder(t *testing.T) {
	dir := t.TempDir()
	args := []string{
		"--database.dialect=sqlite",
		"--metadata.source=manifest",
		"--metadata.manifest_file=" + writeManifest(t, dir),
		"--observability.logging.level=error",
		"--entity=blog.Post",
		"--explain",
		`--descriptor={"fields":["title"],"sort":{"title":"asc","age":"desc"}}`,
	}
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got["sql"], `ORDER BY "post"."title" ASC, "post"."age" DESC`)
}

func TestRun_DumpManifest(t *testing.T) {
	dir := t.TempDir()
	args := []string{
		"--database.dialect=sqlite",
		"--metadata.source=manifest",
		"--metadata.manifest_file=" + writeManifest(t, dir),
		"--observability.logging.level=error",
		"--dump-manifest",
	}
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))

	entities, err := metadata.LoadManifest(&out)
	require.NoError(t, err)
	assert.Len(t, entities, len(blogschema.Entities()))
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		extra   []string
		wantErr string
	}{
		{
			name:    "unknown operation",
			extra:   []string{"--entity=blog.Post", "--operation=delete"},
			wantErr: `unknown operation "delete"`,
		},
		{
			name:    "missing entity",
			extra:   []string{"--explain"},
			wantErr: "--entity is required",
		},
		{
			name:    "invalid descriptor",
			extra:   []string{"--entity=blog.Post", "--explain", "--descriptor={"},
			wantErr: "invalid descriptor JSON",
		},
		{
			name:    "unknown field",
			extra:   []string{"--entity=blog.Post", `--descriptor={"parameters":{"nope":1}}`},
			wantErr: "nope",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(baseArgs(t), tt.extra...)
			var out bytes.Buffer
			err := run(context.Background(), args, &out)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseDescriptor(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		got, err := parseDescriptor(`{"limit": 10, "parameters": {"age:gte": 2.5, "id": [1, 2]}}`, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"limit":      int64(10),
			"parameters": map[string]any{"age:gte": 2.5, "id": []any{int64(1), int64(2)}},
		}, got)
	})

	t.Run("empty", func(t *testing.T) {
		got, err := parseDescriptor("  ", nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "query.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"fields": ["title"]}`), 0o600))
		got, err := parseDescriptor("@"+path, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"fields": []any{"title"}}, got)
	})

	t.Run("stdin", func(t *testing.T) {
		got, err := parseDescriptor("@-", strings.NewReader(`{"index_by": "id"}`))
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"index_by": "id"}, got)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := parseDescriptor("@"+filepath.Join(t.TempDir(), "missing.json"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read descriptor")
	})

	t.Run("sort object keeps document order", func(t *testing.T) {
		got, err := parseDescriptor(`{"sort": {"title": "desc", "age": "asc", "id": "desc"}}`, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{
			map[string]any{"title": "desc"},
			map[string]any{"age": "asc"},
			map[string]any{"id": "desc"},
		}, got["sort"])
	})

	t.Run("relations object keeps document order", func(t *testing.T) {
		got, err := parseDescriptor(`{"relations": {"c.author": {"join_alias": "ca"}, "tags": null, "comments": {"join_alias": "c", "fields": ["text"]}}}`, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{
			"tags",
			map[string]any{"name": "comments", "join_alias": "c", "fields": []any{"text"}},
			map[string]any{"name": "c.author", "join_alias": "ca"},
		}, got["relations"])
	})

	t.Run("relation options must be an object", func(t *testing.T) {
		_, err := parseDescriptor(`{"relations": {"author": true}}`, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `relation "author" options must be an object`)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := parseDescriptor(`[1, 2]`, nil)
		require.Error(t, err)
	})
}
