package metadata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repoquery/internal/sqltype"
)

const blogManifest = `
namespace: blog
entities:
  - name: Post
    table: posts
    identifier: [id]
    fields:
      - {name: id, type: int}
      - {name: title}
      - {name: publicId, column: public_id, type: uuid, data_type: binary}
      - {name: createdAt, column: created_at, data_type: datetime}
    associations:
      - name: comments
        target: Comment
        kind: one_to_many
        local: [id]
        remote: [post_id]
      - name: tags
        target: Tag
        kind: many_to_many
        local: [id]
        remote: [id]
        join_table: post_tags
        join_local: [post_id]
        join_remote: [tag_id]
  - name: Comment
    table: comments
    identifier: [id]
    fields:
      - {name: id, type: int}
      - {name: text}
  - name: Tag
    table: tags
    identifier: [id]
    fields:
      - {name: id, type: int}
      - {name: label}
`

func TestLoadManifest(t *testing.T) {
	entities, err := LoadManifest(strings.NewReader(blogManifest))
	require.NoError(t, err)
	require.Len(t, entities, 3)

	post := entities[0]
	assert.Equal(t, "blog.Post", post.Name)
	assert.Equal(t, "blog", post.Namespace)
	assert.Equal(t, "posts", post.Table)

	publicID, ok := post.Field("publicId")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindUUID, publicID.Kind)
	assert.True(t, publicID.BinaryUUID())

	createdAt, ok := post.Field("createdAt")
	require.True(t, ok)
	assert.Equal(t, sqltype.KindTime, createdAt.Kind)

	tags, ok := post.Association("tags")
	require.True(t, ok)
	assert.Equal(t, ManyToMany, tags.Kind)
	assert.Equal(t, "blog.Tag", tags.TargetEntity)
	assert.Equal(t, "post_tags", tags.JoinTable)

	reg := NewRegistry()
	require.NoError(t, reg.Register(entities...))
	target, err := reg.AssociationTarget("blog.Post", "comments")
	require.NoError(t, err)
	assert.Equal(t, "comment", target.Alias)
}

func TestLoadManifestRejectsUnknownKeys(t *testing.T) {
	_, err := LoadManifest(strings.NewReader("namespace: x\nentitys: []\n"))
	assert.Error(t, err)
}

func TestLoadManifestRejectsUnknownKinds(t *testing.T) {
	_, err := LoadManifest(strings.NewReader(`
entities:
  - name: A
    table: a
    fields:
      - {name: id, type: money}
`))
	assert.Error(t, err)

	_, err = LoadManifest(strings.NewReader(`
entities:
  - name: A
    table: a
    associations:
      - {name: b, target: B, kind: sideways, local: [id], remote: [id]}
`))
	assert.Error(t, err)
}

func TestWriteManifestRoundTrip(t *testing.T) {
	entities, err := LoadManifest(strings.NewReader(blogManifest))
	require.NoError(t, err)

	var buf strings.Builder
	require.NoError(t, WriteManifest(&buf, "blog", entities))
	assert.Contains(t, buf.String(), "namespace: blog")
	assert.Contains(t, buf.String(), "name: Post")
	assert.NotContains(t, buf.String(), "blog.Post")

	reloaded, err := LoadManifest(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, entities, reloaded)
}
