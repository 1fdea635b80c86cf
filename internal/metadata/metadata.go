// Package metadata describes mapped entities: their table, fields, identifier and
// associations. The planner reads it through the Accessor interface to qualify
// identifiers, infer joins and validate sort fields.
package metadata

import (
	"strings"

	"repoquery/internal/sqltype"
	"repoquery/internal/uuidutil"
)

// AssociationKind is the cardinality of an association.
type AssociationKind int

const (
	// ManyToOne points from a foreign key on the local table to the remote key.
	ManyToOne AssociationKind = iota
	// OneToMany is the inverse side of a many-to-one association.
	OneToMany
	// ManyToMany goes through a join table.
	ManyToMany
)

// String returns the manifest name of the kind.
func (k AssociationKind) String() string {
	switch k {
	case OneToMany:
		return "one_to_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "many_to_one"
	}
}

// Field is a mapped column.
type Field struct {
	Name     string
	Column   string
	DataType string
	Kind     sqltype.Kind
}

// ColumnName returns the mapped column, defaulting to the field name.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// BinaryUUID reports whether the field stores UUIDs as raw bytes.
func (f Field) BinaryUUID() bool {
	return f.Kind == sqltype.KindUUID && uuidutil.IsBinaryStorageType(f.DataType)
}

// Association links an entity to a target entity.
// LocalColumns/RemoteColumns are positional key pairs. For ManyToMany the join table
// columns pair with them: JoinTableLocalColumns[i] references LocalColumns[i] and
// JoinTableRemoteColumns[i] references RemoteColumns[i].
type Association struct {
	Name                   string
	TargetEntity           string
	Kind                   AssociationKind
	LocalColumns           []string
	RemoteColumns          []string
	JoinTable              string
	JoinTableLocalColumns  []string
	JoinTableRemoteColumns []string
}

// IsCollection reports whether the association yields many target entities.
func (a Association) IsCollection() bool {
	return a.Kind != ManyToOne
}

// Entity is the mapping of one entity type.
type Entity struct {
	// Name is the fully qualified entity name, e.g. "blog.Post".
	Name      string
	Namespace string
	// RootEntityName is the root of the inheritance hierarchy; it equals Name when unset.
	RootEntityName string
	Table          string
	// Alias is the root alias used when this entity is queried. It is computed on registration.
	Alias        string
	Fields       []Field
	Identifier   []string
	Associations []Association
}

// ShortName returns the entity name with its namespace prefix stripped.
func (e *Entity) ShortName() string {
	return ShortName(e.Name, e.Namespace)
}

// HasField reports whether the entity maps a field with the given name.
func (e *Entity) HasField(name string) bool {
	_, ok := e.Field(name)
	return ok
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the mapped field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Association returns the association with the given name.
func (e *Entity) Association(name string) (Association, bool) {
	for _, a := range e.Associations {
		if a.Name == name {
			return a, true
		}
	}
	return Association{}, false
}

// IsIdentifier reports whether field is part of the entity identifier.
func (e *Entity) IsIdentifier(field string) bool {
	for _, id := range e.Identifier {
		if id == field {
			return true
		}
	}
	return false
}

// ShortName strips the namespace and its separator from a fully qualified name.
// Both "." and "\" are accepted as separators.
func ShortName(name, namespace string) string {
	if namespace != "" {
		for _, sep := range []string{".", `\`} {
			if prefix := namespace + sep; strings.HasPrefix(name, prefix) {
				return name[len(prefix):]
			}
		}
	}
	if idx := strings.LastIndexAny(name, `.\`); idx != -1 {
		return name[idx+1:]
	}
	return name
}

// RootAlias derives the root alias of an entity: the lower-cased short name.
func RootAlias(name, namespace string) string {
	return strings.ToLower(ShortName(name, namespace))
}
