package introspection

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"repoquery/internal/metadata"
	"repoquery/internal/naming"
)

// BuildOptions controls how an introspected schema becomes entity metadata.
type BuildOptions struct {
	// Namespace qualifies entity names: "blog" yields "blog.Post".
	Namespace string
	Namer     *naming.Namer
	Logger    *slog.Logger
}

type entityBuild struct {
	table  *Table
	entity metadata.Entity
}

// BuildMetadata maps every table and view of schema to an entity. Foreign keys become
// many-to-one associations plus their one-to-many inverse, and pure junction tables
// become many-to-many associations on both endpoints.
func BuildMetadata(ctx context.Context, schema *Schema, opts BuildOptions) ([]metadata.Entity, error) {
	_, span := startSpan(ctx, "introspection.build_metadata",
		attribute.String("db.name", schema.Database),
	)
	defer span.End()

	namer := opts.Namer
	if namer == nil {
		namer = naming.Default()
	}
	namer.Reset()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	junctions := ClassifyJunctions(schema)

	builds := make([]*entityBuild, 0, len(schema.Tables))
	byTable := make(map[string]*entityBuild, len(schema.Tables))
	for i := range schema.Tables {
		table := &schema.Tables[i]
		if _, isJunction := junctions[table.Name]; isJunction {
			continue
		}
		short := namer.RegisterEntity(table.Name)
		b := &entityBuild{
			table: table,
			entity: metadata.Entity{
				Name:      qualify(opts.Namespace, short),
				Namespace: opts.Namespace,
				Table:     table.Name,
			},
		}
		for _, col := range table.Columns {
			fieldName := namer.RegisterField(b.entity.Name, col.Name)
			b.entity.Fields = append(b.entity.Fields, metadata.Field{
				Name:     fieldName,
				Column:   col.Name,
				DataType: col.ColumnType,
				Kind:     col.Kind,
			})
			if col.IsPrimaryKey {
				b.entity.Identifier = append(b.entity.Identifier, fieldName)
			}
		}
		builds = append(builds, b)
		byTable[table.Name] = b
	}

	// Many-to-one from each foreign key. Count constraints per target to pick
	// one-to-many names below.
	fkCount := make(map[string]map[string]int)
	for _, b := range builds {
		for _, fk := range ForeignKeyConstraints(*b.table) {
			target, ok := byTable[fk.ReferencedTable]
			if !ok || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
				logger.Warn("skipping foreign key without mapped target",
					slog.String("table", b.table.Name),
					slog.String("constraint", fk.ConstraintName),
					slog.String("referenced_table", fk.ReferencedTable),
				)
				continue
			}
			if fkCount[b.table.Name] == nil {
				fkCount[b.table.Name] = make(map[string]int)
			}
			fkCount[b.table.Name][fk.ReferencedTable]++

			name := namer.RegisterAssociation(b.entity.Name, namer.ManyToOneName(fk.ColumnNames[0]), fk.ReferencedTable, true)
			b.entity.Associations = append(b.entity.Associations, metadata.Association{
				Name:          name,
				TargetEntity:  target.entity.Name,
				Kind:          metadata.ManyToOne,
				LocalColumns:  append([]string(nil), fk.ColumnNames...),
				RemoteColumns: append([]string(nil), fk.ReferencedColumns...),
			})
		}
	}

	// One-to-many inverse sides.
	for _, b := range builds {
		for _, source := range builds {
			for _, fk := range ForeignKeyConstraints(*source.table) {
				if fk.ReferencedTable != b.table.Name || len(fk.ColumnNames) != len(fk.ReferencedColumns) {
					continue
				}
				isOnlyFK := fkCount[source.table.Name][b.table.Name] == 1
				name := namer.RegisterAssociation(b.entity.Name,
					namer.OneToManyName(source.table.Name, fk.ColumnNames[0], isOnlyFK), source.table.Name, false)
				b.entity.Associations = append(b.entity.Associations, metadata.Association{
					Name:          name,
					TargetEntity:  source.entity.Name,
					Kind:          metadata.OneToMany,
					LocalColumns:  append([]string(nil), fk.ReferencedColumns...),
					RemoteColumns: append([]string(nil), fk.ColumnNames...),
				})
			}
		}
	}

	// Many-to-many through pure junctions, visited in table order for stable naming.
	for _, table := range schema.Tables {
		j, ok := junctions[table.Name]
		if !ok {
			continue
		}
		left, right := byTable[j.Left.ReferencedTable], byTable[j.Right.ReferencedTable]
		if left == nil || right == nil {
			continue
		}
		addManyToMany(namer, left, right, j.Table, j.Left, j.Right)
		addManyToMany(namer, right, left, j.Table, j.Right, j.Left)
	}

	entities := make([]metadata.Entity, len(builds))
	for i, b := range builds {
		entities[i] = b.entity
	}
	span.SetAttributes(
		attribute.Int("entities", len(entities)),
		attribute.Int("junctions", len(junctions)),
	)
	return entities, nil
}

func addManyToMany(namer *naming.Namer, from, to *entityBuild, junction string, local, remote ForeignKeyConstraint) {
	name := namer.RegisterManyToMany(from.entity.Name, to.table.Name, junction)
	from.entity.Associations = append(from.entity.Associations, metadata.Association{
		Name:                   name,
		TargetEntity:           to.entity.Name,
		Kind:                   metadata.ManyToMany,
		LocalColumns:           append([]string(nil), local.ReferencedColumns...),
		RemoteColumns:          append([]string(nil), remote.ReferencedColumns...),
		JoinTable:              junction,
		JoinTableLocalColumns:  append([]string(nil), local.ColumnNames...),
		JoinTableRemoteColumns: append([]string(nil), remote.ColumnNames...),
	})
}

// Introspect reads databaseName, applies type overrides and builds entity metadata.
func Introspect(ctx context.Context, db Queryer, databaseName string, overrides TypeOverrides, opts BuildOptions) ([]metadata.Entity, error) {
	schema, err := IntrospectDatabaseContext(ctx, db, databaseName)
	if err != nil {
		return nil, err
	}
	if err := overrides.Apply(schema); err != nil {
		return nil, err
	}
	return BuildMetadata(ctx, schema, opts)
}

func qualify(namespace, name string) string {
	if namespace == "" || strings.ContainsAny(name, `.\`) {
		return name
	}
	return namespace + "." + name
}
