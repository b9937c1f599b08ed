package vectorstore

import (
	"fmt"
	"sort"
)

// Filter is a node in the internal boolean-filter tree. Callers supply plain
// where maps; each adapter compiles the tree to its native filter language.
// Keeping the tree explicit avoids backends defaulting to OR when handed
// multiple conditions.
type Filter interface {
	filterNode()
}

// Eq is an equality constraint on one metadata field.
type Eq struct {
	Field string
	Value any
}

func (Eq) filterNode() {}

// And requires all child filters to match.
type And struct {
	Filters []Filter
}

func (And) filterNode() {}

// BuildFilter converts a caller where map into the filter tree. A single
// condition becomes a bare Eq; multiple conditions are wrapped in an explicit
// And node. Keys are visited in sorted order so compilation is deterministic.
// Returns nil for an empty map.
func BuildFilter(where map[string]any) Filter {
	if len(where) == 0 {
		return nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 1 {
		return Eq{Field: keys[0], Value: where[keys[0]]}
	}

	children := make([]Filter, 0, len(keys))
	for _, k := range keys {
		children = append(children, Eq{Field: k, Value: where[k]})
	}
	return And{Filters: children}
}

// FlattenEq walks the tree and returns its equality leaves. All filters built
// by BuildFilter are AND-of-equality, so this is lossless for adapters whose
// native filter is itself a conjunctive map (chromem).
func FlattenEq(f Filter) []Eq {
	switch node := f.(type) {
	case nil:
		return nil
	case Eq:
		return []Eq{node}
	case And:
		var out []Eq
		for _, child := range node.Filters {
			out = append(out, FlattenEq(child)...)
		}
		return out
	default:
		return nil
	}
}

// scalarString renders a filter value the way metadata values are stored in
// string-keyed backends.
func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
