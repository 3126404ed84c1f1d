// Package query implements the blinded-attribute query compiler: it
// turns a structured, already-blinded attribute query into a store.Query
// (selector plus index hint), without ever seeing plaintext — every name
// and value arriving here has already been HMACed by the caller.
package query

import (
	"net/url"
	"strings"

	"edv-core/internal/errs"
	"edv-core/internal/store"
)

// EqualsClause is one name→value mapping an "equals" query OR's together.
type EqualsClause map[string]string

// AttributeQuery is the structured query shape accepted by Compile.
type AttributeQuery struct {
	Index  string
	Equals []EqualsClause
	Has    []string
	Count  bool
	Limit  int
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Compile validates and translates query into the store-level selector form
// described above.
func Compile(edvID string, q AttributeQuery) (store.Query, error) {
	if q.Index == "" {
		return store.Query{}, errs.NewTypeError("query: index is required")
	}
	hasEquals := len(q.Equals) > 0
	hasHas := len(q.Has) > 0
	if hasEquals == hasHas {
		return store.Query{}, errs.NewTypeError("query: exactly one of equals/has is required")
	}
	if q.Limit != 0 && (q.Limit < 1 || q.Limit > 1000) {
		return store.Query{}, errs.NewTypeError("query: limit must be in [1,1000]")
	}

	sel := store.Selector{"localEdvId": edvID}
	h := escapeComponent(q.Index)

	if hasEquals {
		var clauses []map[string]any
		for _, e := range q.Equals {
			if len(e) == 0 {
				return store.Query{}, errs.NewTypeError("query: equals clause must be non-empty")
			}
			var full []any
			for name, value := range e {
				full = append(full, h+":"+escapeComponent(name)+":"+escapeComponent(value))
			}
			clauses = append(clauses, map[string]any{"attributes": map[string]any{"$all": full}})
		}
		sel["attributes"] = map[string]any{"$gt": nil}
		sel["$or"] = clauses
		return store.Query{Selector: sel, UseIndex: []string{"edv-doc", "attributes"}, Limit: q.Limit}, nil
	}

	var names []any
	for _, n := range q.Has {
		names = append(names, h+":"+escapeComponent(n))
	}
	sel["attributeNames"] = map[string]any{"$all": names}
	return store.Query{Selector: sel, UseIndex: []string{"edv-doc", "attributes.name"}, Limit: q.Limit}, nil
}
