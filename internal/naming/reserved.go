package naming

import "strings"

// joinTableAliasSuffix is appended by the planner to many-to-many join table aliases.
const joinTableAliasSuffix = "__jt"

// isReservedName reports whether a field or association name would clash with
// names the planner generates or parses.
func isReservedName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	return strings.HasSuffix(lowerName, joinTableAliasSuffix)
}

// sanitize drops characters that have meaning in descriptor keys:
// "." separates relation paths and ":" separates alias from field.
func sanitize(name string) string {
	return strings.NewReplacer(".", "_", ":", "_").Replace(name)
}
