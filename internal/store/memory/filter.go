package memory

import (
	"fmt"

	"agfdash/internal/store"
)

// Matches evaluates a filter against a record. Link fields compare by the
// linked id so a constraint on "AGF" matches both "u1" and {"_id": "u1"}.
func Matches(r store.Record, filter store.Filter) bool {
	for _, c := range filter {
		if !matchOne(r[c.Key], c) {
			return false
		}
	}
	return true
}

func matchOne(field any, c store.Constraint) bool {
	if field == nil {
		return false
	}
	switch c.Type {
	case store.Equals:
		return scalarKey(field) == scalarKey(c.Value)
	case store.In:
		key := scalarKey(field)
		for _, v := range setValues(c.Value) {
			if key == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func scalarKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, store.Record:
		return store.RefID(t)
	default:
		return fmt.Sprint(t)
	}
}

func setValues(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			out = append(out, scalarKey(x))
		}
		return out
	default:
		return nil
	}
}
