// Package blogschema provides a small blog mapping (posts, comments, users, tags)
// shared by package tests.
package blogschema

import (
	"repoquery/internal/metadata"
	"repoquery/internal/sqltype"
)

// Namespace of the fixture entities.
const Namespace = "blog"

// Entity names.
const (
	Post    = "blog.Post"
	Comment = "blog.Comment"
	User    = "blog.User"
	Tag     = "blog.Tag"
)

// Entities returns fresh copies of the fixture entities.
func Entities() []metadata.Entity {
	return []metadata.Entity{
		{
			Name:       Post,
			Namespace:  Namespace,
			Table:      "posts",
			Identifier: []string{"id"},
			Fields: []metadata.Field{
				{Name: "id", Column: "id", DataType: "int", Kind: sqltype.KindInt},
				{Name: "title", Column: "title", DataType: "varchar", Kind: sqltype.KindString},
				{Name: "status", Column: "status", DataType: "varchar", Kind: sqltype.KindString},
				{Name: "age", Column: "age", DataType: "int", Kind: sqltype.KindInt},
				{Name: "authorId", Column: "author_id", DataType: "int", Kind: sqltype.KindInt},
				{Name: "deleted", Column: "deleted_at", DataType: "datetime", Kind: sqltype.KindTime},
			},
			Associations: []metadata.Association{
				{Name: "author", TargetEntity: User, Kind: metadata.ManyToOne, LocalColumns: []string{"author_id"}, RemoteColumns: []string{"id"}},
				{Name: "comments", TargetEntity: Comment, Kind: metadata.OneToMany, LocalColumns: []string{"id"}, RemoteColumns: []string{"post_id"}},
				{
					Name: "tags", TargetEntity: Tag, Kind: metadata.ManyToMany,
					LocalColumns: []string{"id"}, RemoteColumns: []string{"id"},
					JoinTable: "post_tags", JoinTableLocalColumns: []string{"post_id"}, JoinTableRemoteColumns: []string{"tag_id"},
				},
			},
		},
		{
			Name:       Comment,
			Namespace:  Namespace,
			Table:      "comments",
			Identifier: []string{"id"},
			Fields: []metadata.Field{
				{Name: "id", Column: "id", DataType: "int", Kind: sqltype.KindInt},
				{Name: "postId", Column: "post_id", DataType: "int", Kind: sqltype.KindInt},
				{Name: "text", Column: "text", DataType: "text", Kind: sqltype.KindString},
				{Name: "authorId", Column: "author_id", DataType: "int", Kind: sqltype.KindInt},
			},
			Associations: []metadata.Association{
				{Name: "post", TargetEntity: Post, Kind: metadata.ManyToOne, LocalColumns: []string{"post_id"}, RemoteColumns: []string{"id"}},
				{Name: "author", TargetEntity: User, Kind: metadata.ManyToOne, LocalColumns: []string{"author_id"}, RemoteColumns: []string{"id"}},
			},
		},
		{
			Name:       User,
			Namespace:  Namespace,
			Table:      "users",
			Identifier: []string{"id"},
			Fields: []metadata.Field{
				{Name: "id", Column: "id", DataType: "int", Kind: sqltype.KindInt},
				{Name: "name", Column: "name", DataType: "varchar", Kind: sqltype.KindString},
				{Name: "email", Column: "email", DataType: "varchar", Kind: sqltype.KindString},
			},
			Associations: []metadata.Association{
				{Name: "posts", TargetEntity: Post, Kind: metadata.OneToMany, LocalColumns: []string{"id"}, RemoteColumns: []string{"author_id"}},
			},
		},
		{
			Name:       Tag,
			Namespace:  Namespace,
			Table:      "tags",
			Identifier: []string{"id"},
			Fields: []metadata.Field{
				{Name: "id", Column: "id", DataType: "int", Kind: sqltype.KindInt},
				{Name: "label", Column: "label", DataType: "varchar", Kind: sqltype.KindString},
			},
		},
	}
}

// Registry returns a registry with the fixture entities registered.
func Registry() *metadata.Registry {
	return metadata.NewRegistry().MustRegister(Entities()...)
}
