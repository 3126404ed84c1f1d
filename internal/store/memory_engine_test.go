package store

import (
	"context"
	"testing"
)

func TestMemoryEnginePutConflictOnStaleRev(t *testing.T) {
	eng := NewMemoryEngine()
	ctx := context.Background()

	res, err := eng.Put(ctx, "docs", map[string]any{"_id": "a", "v": 1})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	_, err = eng.Put(ctx, "docs", map[string]any{"_id": "a", "_rev": "stale", "v": 2})
	if err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := eng.Put(ctx, "docs", map[string]any{"_id": "a", "_rev": res.Rev, "v": 2}); err != nil {
		t.Fatalf("put with current rev: %v", err)
	}
}

func TestMemoryEnginePutConflictOnFreshInsertOverExisting(t *testing.T) {
	eng := NewMemoryEngine()
	ctx := context.Background()

	if _, err := eng.Put(ctx, "docs", map[string]any{"_id": "a"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := eng.Put(ctx, "docs", map[string]any{"_id": "a"}); err != ErrConflict {
		t.Fatalf("expected ErrConflict on fresh insert over existing, got %v", err)
	}
}

func TestMemoryEngineFindSelectorOperators(t *testing.T) {
	eng := NewMemoryEngine()
	ctx := context.Background()

	if _, err := eng.Put(ctx, "docs", map[string]any{
		"_id":            "a",
		"attributeNames": []any{"h:name", "h:age"},
		"attributes":     []any{"h:name:alice", "h:age:30"},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := eng.Put(ctx, "docs", map[string]any{
		"_id":            "b",
		"attributeNames": []any{"h:name"},
		"attributes":     []any{"h:name:bob"},
	}); err != nil {
		t.Fatalf("put: %v", err)
	}

	recs, err := eng.Find(ctx, "docs", FindOptions{
		Selector: Selector{"attributeNames": map[string]any{"$all": []any{"h:name", "h:age"}}},
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(recs) != 1 || recs[0]["_id"] != "a" {
		t.Fatalf("expected only record a, got %+v", recs)
	}

	orRecs, err := eng.Find(ctx, "docs", FindOptions{
		Selector: Selector{"$or": []map[string]any{
			{"attributes": map[string]any{"$all": []any{"h:name:bob"}}},
		}},
	})
	if err != nil {
		t.Fatalf("find $or: %v", err)
	}
	if len(orRecs) != 1 || orRecs[0]["_id"] != "b" {
		t.Fatalf("expected only record b, got %+v", orRecs)
	}
}

func TestMemoryEnginePostGeneratesID(t *testing.T) {
	eng := NewMemoryEngine()
	ctx := context.Background()

	res, err := eng.Post(ctx, "docs", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if res.ID == "" {
		t.Fatal("expected generated id")
	}
	recs, err := eng.Find(ctx, "docs", FindOptions{Selector: Selector{"_id": res.ID}})
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected to find posted record, err=%v recs=%v", err, recs)
	}
}
