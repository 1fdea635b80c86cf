package descriptor

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"repoquery/internal/repoerr"
)

type rawDescriptor struct {
	Parameters         map[string]any `mapstructure:"parameters"`
	Relations          any            `mapstructure:"relations"`
	Sort               any            `mapstructure:"sort"`
	Limit              *int           `mapstructure:"limit"`
	Offset             *int           `mapstructure:"offset"`
	Fields             []string       `mapstructure:"fields"`
	IndexBy            string         `mapstructure:"index_by"`
	HydrationMode      string         `mapstructure:"hydration_mode"`
	Cache              *rawCache      `mapstructure:"cache"`
	CountAvailableRows bool           `mapstructure:"count_available_rows"`
}

type rawCache struct {
	TTL  time.Duration `mapstructure:"ttl"`
	Name string        `mapstructure:"name"`
}

type rawRelation struct {
	Name              string   `mapstructure:"name"`
	JoinAlias         string   `mapstructure:"join_alias"`
	JoinType          string   `mapstructure:"join_type"`
	JoinCondition     string   `mapstructure:"join_condition"`
	JoinConditionArgs []any    `mapstructure:"join_condition_args"`
	JoinConditionType string   `mapstructure:"join_condition_type"`
	IndexBy           string   `mapstructure:"index_by"`
	Fields            []string `mapstructure:"fields"`
}

// FromMap decodes a loosely typed descriptor, typically parsed from JSON or YAML.
// Keys match case-insensitively and ignore underscores, so "index_by" and "indexBy" are equivalent.
// Unknown keys are rejected. A Go map has no key order, so a multi-key "sort" map is
// applied in key order; pass a list of single-key maps to control the order.
func FromMap(input map[string]any) (*Descriptor, error) {
	var raw rawDescriptor
	if err := decode(input, &raw); err != nil {
		return nil, err
	}

	mode, err := ParseHydrationMode(raw.HydrationMode)
	if err != nil {
		return nil, err
	}
	relations, err := decodeRelations(raw.Relations)
	if err != nil {
		return nil, err
	}
	sortEntries, err := decodeSort(raw.Sort)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Parameters:         raw.Parameters,
		Relations:          relations,
		Sort:               sortEntries,
		Limit:              raw.Limit,
		Offset:             raw.Offset,
		Fields:             raw.Fields,
		IndexBy:            raw.IndexBy,
		HydrationMode:      mode,
		CountAvailableRows: raw.CountAvailableRows,
	}
	if d.Parameters == nil {
		d.Parameters = map[string]any{}
	}
	if raw.Cache != nil {
		d.Cache = &CacheOptions{TTL: raw.Cache.TTL, Name: raw.Cache.Name}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func decode(input any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		MatchName:   matchName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create descriptor decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return repoerr.Wrap(repoerr.ErrInvalidArgument, err, "invalid descriptor")
	}
	return nil
}

func matchName(mapKey, fieldName string) bool {
	return normalizeName(mapKey) == normalizeName(fieldName)
}

// secondsToDurationHookFunc reads bare numbers as seconds when the target is a time.Duration.
func secondsToDurationHookFunc() mapstructure.DecodeHookFunc {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

func decodeRelations(value any) ([]Relation, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []Relation:
		return v, nil
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sortRelationNames(names)
		relations := make([]Relation, 0, len(names))
		for _, name := range names {
			raw := rawRelation{}
			if opts := v[name]; opts != nil {
				if err := decode(opts, &raw); err != nil {
					return nil, err
				}
			}
			raw.Name = name
			rel, err := raw.toRelation()
			if err != nil {
				return nil, err
			}
			relations = append(relations, rel)
		}
		return relations, nil
	case []any:
		relations := make([]Relation, 0, len(v))
		for i, item := range v {
			if name, ok := item.(string); ok {
				relations = append(relations, Relation{Name: name})
				continue
			}
			var raw rawRelation
			if err := decode(item, &raw); err != nil {
				return nil, err
			}
			if raw.Name == "" {
				return nil, repoerr.InvalidArgument("relation %d has no name", i)
			}
			rel, err := raw.toRelation()
			if err != nil {
				return nil, err
			}
			relations = append(relations, rel)
		}
		return relations, nil
	default:
		return nil, repoerr.InvalidArgument("relations must be a map or a list, got %T", value)
	}
}

// sortRelationNames orders map-form relations so joins from the root come before
// joins that hang off another join alias.
func sortRelationNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		di, dj := strings.Count(names[i], "."), strings.Count(names[j], ".")
		if di != dj {
			return di < dj
		}
		return names[i] < names[j]
	})
}

func (r rawRelation) toRelation() (Relation, error) {
	joinType, err := ParseJoinType(r.JoinType)
	if err != nil {
		return Relation{}, err
	}
	condType, err := ParseConditionType(r.JoinConditionType)
	if err != nil {
		return Relation{}, err
	}
	return Relation{
		Name: r.Name,
		Options: RelationOptions{
			JoinAlias:         r.JoinAlias,
			JoinType:          joinType,
			JoinCondition:     r.JoinCondition,
			JoinConditionArgs: r.JoinConditionArgs,
			JoinConditionType: condType,
			IndexBy:           r.IndexBy,
			Fields:            r.Fields,
		},
	}, nil
}

func decodeSort(value any) ([]SortEntry, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []SortEntry:
		return v, nil
	case map[string]any:
		return sortEntriesFromMap(v)
	case map[string]string:
		entries := make([]SortEntry, 0, len(v))
		for _, field := range sortedKeys(v) {
			entries = append(entries, SortEntry{Field: field, Direction: v[field]})
		}
		return entries, nil
	case []any:
		var entries []SortEntry
		for i, item := range v {
			switch e := item.(type) {
			case string:
				entries = append(entries, SortEntry{Field: e})
			case map[string]any:
				if len(e) != 1 {
					return nil, repoerr.InvalidArgument("sort entry %d must have exactly one field", i)
				}
				more, err := sortEntriesFromMap(e)
				if err != nil {
					return nil, err
				}
				entries = append(entries, more...)
			default:
				return nil, repoerr.InvalidArgument("sort entry %d must be a field name or a map, got %T", i, item)
			}
		}
		return entries, nil
	default:
		return nil, repoerr.InvalidArgument("sort must be a map or a list, got %T", value)
	}
}

func sortEntriesFromMap(m map[string]any) ([]SortEntry, error) {
	entries := make([]SortEntry, 0, len(m))
	for _, field := range sortedKeys(m) {
		direction, ok := m[field].(string)
		if !ok && m[field] != nil {
			return nil, repoerr.InvalidArgument("sort direction for %q must be a string, got %T", field, m[field])
		}
		entries = append(entries, SortEntry{Field: field, Direction: direction})
	}
	return entries, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
