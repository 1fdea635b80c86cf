package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// inflector produces plural and singular forms. Configured overrides match
// case-insensitively and win over the inflection rules.
type inflector struct {
	plural   map[string]string
	singular map[string]string
}

func newInflector(cfg Config) inflector {
	return inflector{
		plural:   lowerKeys(cfg.PluralOverrides),
		singular: lowerKeys(cfg.SingularOverrides),
	}
}

func lowerKeys(overrides map[string]string) map[string]string {
	out := make(map[string]string, len(overrides))
	for from, to := range overrides {
		out[strings.ToLower(strings.TrimSpace(from))] = strings.TrimSpace(to)
	}
	return out
}

func (i inflector) pluralize(word string) string {
	return inflect(word, i.plural, inflection.Plural)
}

func (i inflector) singularize(word string) string {
	return inflect(word, i.singular, inflection.Singular)
}

// inflect applies an override or the fallback rule to word. An override keeps the
// word's leading capital so "Data" with a data->datum override becomes "Datum".
func inflect(word string, overrides map[string]string, fallback func(string) string) string {
	if word == "" {
		return word
	}
	override, ok := overrides[strings.ToLower(word)]
	if !ok {
		return fallback(word)
	}
	if first := word[:1]; first != strings.ToLower(first) && override != "" {
		return strings.ToUpper(override[:1]) + override[1:]
	}
	return override
}

// lastToken applies fn to the final underscore-separated token of a snake_case
// name: "order_items" singularizes to "order_item".
func lastToken(name string, fn func(string) string) string {
	idx := strings.LastIndex(name, "_")
	if idx == -1 {
		return fn(name)
	}
	return name[:idx+1] + fn(name[idx+1:])
}

// Pluralize returns the plural form of word.
func (n *Namer) Pluralize(word string) string {
	return n.inflector.pluralize(word)
}

// Singularize returns the singular form of word.
func (n *Namer) Singularize(word string) string {
	return n.inflector.singularize(word)
}
