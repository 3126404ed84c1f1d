package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"edv-core/internal/idcodec"
)

// MemoryEngine is an in-process Engine backed by a map, used by unit tests
// and by the example CLI. It implements the same selector operators the
// Mongo engine understands ($in, $all, $or, $gt) so callers can be tested
// against either engine interchangeably.
type MemoryEngine struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	revCounter  uint64
}

// NewMemoryEngine creates an empty engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{collections: make(map[string]map[string]map[string]any)}
}

func (e *MemoryEngine) coll(name string) map[string]map[string]any {
	c, ok := e.collections[name]
	if !ok {
		c = make(map[string]map[string]any)
		e.collections[name] = c
	}
	return c
}

func (e *MemoryEngine) nextRev() string {
	e.revCounter++
	return fmt.Sprintf("%d", e.revCounter)
}

func (e *MemoryEngine) Put(ctx context.Context, collection string, doc map[string]any) (PutResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, _ := doc["_id"].(string)
	if id == "" {
		return PutResult{}, fmt.Errorf("store: Put requires _id")
	}
	c := e.coll(collection)
	existing, exists := c[id]
	oldRev, _ := doc["_rev"].(string)

	if oldRev == "" {
		if exists {
			return PutResult{}, ErrConflict
		}
	} else {
		if !exists || existing["_rev"] != oldRev {
			return PutResult{}, ErrConflict
		}
	}

	newRev := e.nextRev()
	stored := cloneDoc(doc)
	stored["_rev"] = newRev
	c[id] = stored
	return PutResult{ID: id, Rev: newRev}, nil
}

func (e *MemoryEngine) Post(ctx context.Context, collection string, doc map[string]any) (PutResult, error) {
	e.mu.Lock()
	id, _ := doc["_id"].(string)
	e.mu.Unlock()

	if id == "" {
		generated, err := idcodec.RandomID()
		if err != nil {
			return PutResult{}, err
		}
		doc = cloneDoc(doc)
		doc["_id"] = generated
	}
	delete(doc, "_rev")
	return e.Put(ctx, collection, doc)
}

func (e *MemoryEngine) Find(ctx context.Context, collection string, opts FindOptions) ([]map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.coll(collection)
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []map[string]any
	for _, id := range ids {
		rec := c[id]
		if matches(rec, opts.Selector) {
			out = append(out, cloneDoc(rec))
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
	}
	return out, nil
}

func (e *MemoryEngine) EnsureIndex(ctx context.Context, collection string, spec IndexSpec) error {
	return nil
}

func (e *MemoryEngine) Delete(ctx context.Context, collection, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.coll(collection), id)
	return nil
}

func cloneDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// matches evaluates the small selector language the document/chunk/config
// layers compile queries into: plain equality, and $in/$all/$or/$gt.
func matches(rec map[string]any, sel Selector) bool {
	for field, cond := range sel {
		if field == "$or" {
			clauses, ok := cond.([]Selector)
			if !ok {
				if raw, ok2 := cond.([]map[string]any); ok2 {
					any := false
					for _, c := range raw {
						if matches(rec, Selector(c)) {
							any = true
							break
						}
					}
					if !any {
						return false
					}
					continue
				}
				return false
			}
			any := false
			for _, c := range clauses {
				if matches(rec, c) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
			continue
		}
		if !fieldMatches(getPath(rec, field), cond) {
			return false
		}
	}
	return true
}

// getPath resolves a dot-separated field path ("doc.sequence") against
// nested maps, the same addressing Mongo selectors use.
func getPath(rec map[string]any, path string) any {
	cur := any(rec)
	for _, part := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func fieldMatches(value any, cond any) bool {
	switch c := cond.(type) {
	case map[string]any:
		for op, arg := range c {
			switch op {
			case "$in":
				if !containsAny(value, arg) {
					return false
				}
			case "$all":
				if !containsAll(value, arg) {
					return false
				}
			case "$gt":
				if arg == nil && value == nil {
					return false
				}
			default:
				return false
			}
		}
		return true
	default:
		return value == cond
	}
}

func toSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	default:
		return nil
	}
}

func containsAny(value any, wanted any) bool {
	vals := toSlice(value)
	for _, w := range toSlice(wanted) {
		for _, v := range vals {
			if v == w {
				return true
			}
		}
	}
	return false
}

func containsAll(value any, wanted any) bool {
	vals := toSlice(value)
	for _, w := range toSlice(wanted) {
		found := false
		for _, v := range vals {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
