// Package descriptor defines the query descriptor: the caller's declarative
// description of filters, joins, sort, pagination, projection, hydration and
// caching for one repository query.
package descriptor

import (
	"strings"
	"time"

	"repoquery/internal/repoerr"
)

// HydrationMode selects the shape results are materialized into.
type HydrationMode int

const (
	// HydrateObject produces entity objects with related entities nested under their join alias.
	HydrateObject HydrationMode = iota
	// HydrateArray produces the same tree as plain maps.
	HydrateArray
	// HydrateScalar produces one flat map per SQL row keyed by alias_field.
	HydrateScalar
	// HydrateSingleScalar produces the first column of a single row.
	HydrateSingleScalar
)

var hydrationModeNames = map[HydrationMode]string{
	HydrateObject:       "object",
	HydrateArray:        "array",
	HydrateScalar:       "scalar",
	HydrateSingleScalar: "single_scalar",
}

// String returns the descriptor name of the mode.
func (m HydrationMode) String() string {
	if name, ok := hydrationModeNames[m]; ok {
		return name
	}
	return "object"
}

// ParseHydrationMode parses a hydration mode name. An empty name is HydrateObject.
func ParseHydrationMode(name string) (HydrationMode, error) {
	normalized := normalizeName(name)
	if normalized == "" {
		return HydrateObject, nil
	}
	for mode, modeName := range hydrationModeNames {
		if normalizeName(modeName) == normalized {
			return mode, nil
		}
	}
	return HydrateObject, repoerr.InvalidArgument("unknown hydration mode %q", name)
}

// JoinType is the SQL join used for a relation.
type JoinType int

const (
	// JoinLeft is a LEFT JOIN, the default.
	JoinLeft JoinType = iota
	// JoinInner is an INNER JOIN.
	JoinInner
)

// String returns the descriptor name of the join type.
func (t JoinType) String() string {
	if t == JoinInner {
		return "INNER"
	}
	return "LEFT"
}

// ParseJoinType parses "left" or "inner" (case-insensitive). An empty name is JoinLeft.
func ParseJoinType(name string) (JoinType, error) {
	switch normalizeName(name) {
	case "", "left":
		return JoinLeft, nil
	case "inner":
		return JoinInner, nil
	default:
		return JoinLeft, repoerr.InvalidArgument("unknown join type %q", name)
	}
}

// ConditionType controls how a join condition combines with the association condition.
type ConditionType int

const (
	// ConditionWith adds the condition to the association key condition.
	ConditionWith ConditionType = iota
	// ConditionOn replaces the association key condition.
	ConditionOn
)

// String returns the descriptor name of the condition type.
func (t ConditionType) String() string {
	if t == ConditionOn {
		return "ON"
	}
	return "WITH"
}

// ParseConditionType parses "with" or "on" (case-insensitive). An empty name is ConditionWith.
func ParseConditionType(name string) (ConditionType, error) {
	switch normalizeName(name) {
	case "", "with":
		return ConditionWith, nil
	case "on":
		return ConditionOn, nil
	default:
		return ConditionWith, repoerr.InvalidArgument("unknown join condition type %q", name)
	}
}

// RelationOptions configures how one relation is joined.
type RelationOptions struct {
	// JoinAlias defaults to the last dot segment of the relation name.
	JoinAlias         string
	JoinType          JoinType
	JoinCondition     string
	JoinConditionArgs []any
	JoinConditionType ConditionType
	IndexBy           string
	// Fields restricts the joined entity to a partial projection.
	Fields []string
}

// Relation is one join directive. Name is either an association of the root entity
// ("comments") or "<alias>.<association>".
type Relation struct {
	Name    string
	Options RelationOptions
}

// SortEntry is one requested ordering.
type SortEntry struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// CacheOptions enables result caching for a query.
type CacheOptions struct {
	TTL  time.Duration
	Name string
}

// Descriptor is the caller's intent for one query.
type Descriptor struct {
	Parameters map[string]any
	Relations  []Relation
	Sort       []SortEntry
	// Limit and Offset are nil when not provided; zero is a real value.
	Limit              *int
	Offset             *int
	Fields             []string
	IndexBy            string
	HydrationMode      HydrationMode
	Cache              *CacheOptions
	CountAvailableRows bool
}

// New returns an empty descriptor.
func New() *Descriptor {
	return &Descriptor{Parameters: map[string]any{}}
}

// Where adds a filter parameter.
func (d *Descriptor) Where(key string, value any) *Descriptor {
	if d.Parameters == nil {
		d.Parameters = map[string]any{}
	}
	d.Parameters[key] = value
	return d
}

// Join adds a relation directive.
func (d *Descriptor) Join(name string, opts RelationOptions) *Descriptor {
	d.Relations = append(d.Relations, Relation{Name: name, Options: opts})
	return d
}

// OrderBy adds a sort entry.
func (d *Descriptor) OrderBy(field, direction string) *Descriptor {
	d.Sort = append(d.Sort, SortEntry{Field: field, Direction: direction})
	return d
}

// WithLimit sets the maximum number of results.
func (d *Descriptor) WithLimit(limit int) *Descriptor {
	d.Limit = &limit
	return d
}

// WithOffset sets the first result position.
func (d *Descriptor) WithOffset(offset int) *Descriptor {
	d.Offset = &offset
	return d
}

// WithCache enables result caching.
func (d *Descriptor) WithCache(ttl time.Duration, name string) *Descriptor {
	d.Cache = &CacheOptions{TTL: ttl, Name: name}
	return d
}

// Validate checks values the planner cannot interpret.
func (d *Descriptor) Validate() error {
	if d.Limit != nil && *d.Limit < 0 {
		return repoerr.InvalidArgument("limit must not be negative, got %d", *d.Limit)
	}
	if d.Offset != nil && *d.Offset < 0 {
		return repoerr.InvalidArgument("offset must not be negative, got %d", *d.Offset)
	}
	if d.Cache != nil && d.Cache.TTL < 0 {
		return repoerr.InvalidArgument("cache ttl must not be negative")
	}
	if d.Cache != nil && strings.Contains(d.Cache.Name, ":") {
		return repoerr.InvalidArgument("cache name %q must not contain \":\"", d.Cache.Name)
	}
	for _, rel := range d.Relations {
		if strings.TrimSpace(rel.Name) == "" {
			return repoerr.InvalidArgument("relation name is required")
		}
	}
	return nil
}

// Resolve accepts a *Descriptor, a Descriptor or a map[string]any and returns a validated descriptor.
// Any other input is an ErrInvalidArgument.
func Resolve(input any) (*Descriptor, error) {
	var d *Descriptor
	switch v := input.(type) {
	case *Descriptor:
		if v == nil {
			return nil, repoerr.InvalidArgument("descriptor is nil")
		}
		d = v
	case Descriptor:
		d = &v
	case map[string]any:
		decoded, err := FromMap(v)
		if err != nil {
			return nil, err
		}
		d = decoded
	default:
		return nil, repoerr.InvalidArgument("expected a descriptor or a map[string]any, got %T", input)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, "-", "")
}
