// Package sqlutil provides SQL dialect helpers: identifier quoting, string
// literal quoting and placeholder formats for the supported databases.
package sqlutil

import (
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the per-database differences the planner needs when rendering SQL.
type Dialect struct {
	Name string
	// DriverName is the database/sql driver registered for this dialect.
	DriverName string
	// Placeholder is the bind parameter format.
	Placeholder sq.PlaceholderFormat
	// IdentifierQuote is the character used to quote identifiers.
	IdentifierQuote string
	// OffsetNeedsLimit is set when the database rejects OFFSET without LIMIT.
	OffsetNeedsLimit bool
}

var (
	// MySQL covers MySQL and TiDB.
	MySQL = Dialect{Name: "mysql", DriverName: "mysql", Placeholder: sq.Question, IdentifierQuote: "`", OffsetNeedsLimit: true}
	// Postgres covers PostgreSQL.
	Postgres = Dialect{Name: "postgres", DriverName: "postgres", Placeholder: sq.Dollar, IdentifierQuote: `"`}
	// SQLite covers SQLite.
	SQLite = Dialect{Name: "sqlite", DriverName: "sqlite", Placeholder: sq.Question, IdentifierQuote: `"`, OffsetNeedsLimit: true}
)

// UnboundedLimit is the LIMIT rendered when only an offset is requested on
// databases that require a LIMIT clause.
const UnboundedLimit uint64 = math.MaxInt64

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported dialect %q", name)
	}
}

// QuoteIdentifier quotes a SQL identifier (table name, column name, etc.)
// and escapes any quote characters within the identifier.
func (d Dialect) QuoteIdentifier(name string) string {
	q := d.IdentifierQuote
	if q == "" {
		q = "`"
	}
	escaped := strings.ReplaceAll(name, q, q+q)
	return q + escaped + q
}

// QualifiedColumn quotes alias.column.
func (d Dialect) QualifiedColumn(alias, column string) string {
	if alias == "" {
		return d.QuoteIdentifier(column)
	}
	return d.QuoteIdentifier(alias) + "." + d.QuoteIdentifier(column)
}

// QuoteString quotes a SQL string literal with single quotes and escapes
// any single quotes within the string by doubling them.
func QuoteString(s string) string {
	escaped := strings.ReplaceAll(s, "'", "''")
	return "'" + escaped + "'"
}
