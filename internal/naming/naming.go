package naming

import (
	"log/slog"
	"strings"
)

// Namer converts table and column names into entity, field and association
// names. It handles pluralization, reserved names and collisions.
type Namer struct {
	inflector inflector
	logger    *slog.Logger
	scopes    *nameScopes
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		inflector: newInflector(cfg),
		logger:    logger,
		scopes:    newNameScopes(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset forgets every claimed name, allowing the namer to be reused for a new
// metadata build.
func (n *Namer) Reset() {
	n.scopes = newNameScopes(n.logger)
}

// EntityName converts a table name to a singular PascalCase entity name.
// Example: "blog_posts" -> "BlogPost"
func (n *Namer) EntityName(tableName string) string {
	return toPascalCase(lastToken(sanitize(tableName), n.Singularize))
}

// FieldName converts a column name to a camelCase field name.
// Example: "author_id" -> "authorId"
func (n *Namer) FieldName(columnName string) string {
	return toCamelCase(sanitize(columnName))
}

// ManyToOneName generates the association name for a many-to-one relationship
// based on the FK column name with common suffixes stripped.
// Example: "author_id" -> "author", "created_by_user_id" -> "createdByUser"
func (n *Namer) ManyToOneName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) && len(name) > len(suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return n.FieldName(name)
}

// OneToManyName generates the association name for the inverse side of a foreign key.
// If isOnlyFK is true (single FK from source table), uses the pluralized table name.
// Otherwise, prefixes with the FK column name for disambiguation.
// Example: isOnlyFK=true: "comments" -> "comments"
// Example: isOnlyFK=false, fkColumn="author_id": "posts" -> "authorPosts"
func (n *Namer) OneToManyName(sourceTable, fkColumn string, isOnlyFK bool) string {
	tablePlural := n.Pluralize(n.FieldName(sourceTable))

	if isOnlyFK {
		return tablePlural
	}

	prefix := n.ManyToOneName(fkColumn)
	if len(tablePlural) > 0 {
		return prefix + strings.ToUpper(tablePlural[:1]) + tablePlural[1:]
	}
	return prefix
}

// ManyToManyName generates the association name for access through a pure junction table.
// Example: "tag" -> "tags"
func (n *Namer) ManyToManyName(targetTable string) string {
	return n.Pluralize(n.FieldName(targetTable))
}

// RegisterEntity claims the entity name for a table. A name already held by
// another table gets a numeric suffix.
func (n *Namer) RegisterEntity(tableName string) string {
	return n.scopes.claimEntity(n.EntityName(tableName), tableName)
}

// RegisterField claims the field name for a column. Columns are registered before
// associations, so they only lose their name to another column.
func (n *Namer) RegisterField(entityName, columnName string) string {
	fieldName := n.validateAndSuffix(n.FieldName(columnName))
	return n.scopes.claimMember(entityName, fieldName, "", claim{kind: kindField, source: "column:" + columnName})
}

// RegisterAssociation claims an association name derived from a foreign key.
// A taken name is qualified with Ref (many-to-one) or Rel (one-to-many).
func (n *Namer) RegisterAssociation(entityName, name, source string, isManyToOne bool) string {
	c := claim{kind: kindOneToMany, source: "table:" + source}
	qualifier := "Rel"
	if isManyToOne {
		c.kind, qualifier = kindManyToOne, "Ref"
	}
	return n.scopes.claimMember(entityName, n.validateAndSuffix(name), qualifier, c)
}

// RegisterManyToMany claims the name of an association through a junction table.
// A taken name is qualified with Via{Junction}.
func (n *Namer) RegisterManyToMany(entityName, targetTable, junctionTable string) string {
	c := claim{kind: kindManyToMany, source: "junction:" + junctionTable + "->" + targetTable}
	qualifier := "Via" + toPascalCase(sanitize(junctionTable))
	return n.scopes.claimMember(entityName, n.validateAndSuffix(n.ManyToManyName(targetTable)), qualifier, c)
}

func (n *Namer) validateAndSuffix(name string) string {
	if isReservedName(name) {
		safeName := name + "_"
		n.logger.Warn("name conflicts with reserved pattern, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
