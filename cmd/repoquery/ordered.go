package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// member is one key/value pair of a JSON object, in document order.
type member struct {
	key   string
	value any
}

// keepObjectOrder rewrites object-form "sort" and "relations" entries of a decoded
// descriptor into their list forms, so the order written in the JSON survives the
// trip through map[string]any.
func keepObjectOrder(raw string, out map[string]any) error {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return err
	}
	for key, value := range top {
		value = bytes.TrimSpace(value)
		if len(value) == 0 || value[0] != '{' {
			continue
		}
		switch strings.ToLower(key) {
		case "sort":
			members, err := orderedMembers(value)
			if err != nil {
				return err
			}
			out[key] = sortList(members)
		case "relations":
			members, err := orderedMembers(value)
			if err != nil {
				return err
			}
			relations, err := relationList(members)
			if err != nil {
				return err
			}
			out[key] = relations
		}
	}
	return nil
}

func orderedMembers(raw json.RawMessage) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		members = append(members, member{key: key, value: normalizeNumbers(value)})
	}
	return members, nil
}

// sortList turns {"a": "desc", "b": "asc"} into [{"a": "desc"}, {"b": "asc"}].
func sortList(members []member) []any {
	entries := make([]any, 0, len(members))
	for _, m := range members {
		entries = append(entries, map[string]any{m.key: m.value})
	}
	return entries
}

// relationList turns {"comments": {...}, "author": null} into named relation
// entries. Joins from the root stay ahead of joins off another alias; otherwise
// document order is kept.
func relationList(members []member) ([]any, error) {
	sort.SliceStable(members, func(i, j int) bool {
		return strings.Count(members[i].key, ".") < strings.Count(members[j].key, ".")
	})
	relations := make([]any, 0, len(members))
	for _, m := range members {
		switch opts := m.value.(type) {
		case nil:
			relations = append(relations, m.key)
		case map[string]any:
			entry := make(map[string]any, len(opts)+1)
			for k, v := range opts {
				entry[k] = v
			}
			entry["name"] = m.key
			relations = append(relations, entry)
		default:
			return nil, fmt.Errorf("relation %q options must be an object, got %T", m.key, m.value)
		}
	}
	return relations, nil
}
