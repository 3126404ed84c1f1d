// Package config implements a reusable, sequence-gated typed configuration
// repository: insert with an implicit _id uniqueness check, update
// guarded by the caller observing the current sequence, and lookup by id.
// Both the vault config and the secret config repositories are instances of
// this generic with different collections and shape assertions.
package config

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"edv-core/internal/audit"
	"edv-core/internal/errs"
	"edv-core/internal/store"
)

// Repo is a generic sequence-gated repository over collection, for any T
// that round-trips through bson (every config type here carries bson tags).
type Repo[T any] struct {
	Engine     store.Engine
	Audit      *audit.Log
	Collection string

	// Assert validates shape beyond what Go's type system already enforces
	// (non-empty fields, well-formed nested references, and so on).
	Assert func(T) error

	// IDOf and SequenceOf extract the fields insert/update/get key off.
	IDOf       func(T) string
	SequenceOf func(T) int64
}

// Insert stores cfg, requiring SequenceOf(cfg) == 0 and a fresh id.
func (r *Repo[T]) Insert(ctx context.Context, cfg T) (T, error) {
	var zero T
	if err := r.Assert(cfg); err != nil {
		return zero, err
	}
	if r.SequenceOf(cfg) != 0 {
		return zero, errs.NewTypeError("config: sequence must be 0 on insert")
	}

	doc, err := ToMap(cfg)
	if err != nil {
		return zero, err
	}
	doc["_id"] = r.IDOf(cfg)

	res, err := store.InsertOne(ctx, r.Engine, r.Audit, r.Collection, store.InsertOneOpts{Doc: doc})
	if err != nil {
		return zero, err
	}

	var out T
	if err := FromMap(res.Record, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Update replaces the stored record iff its current sequence equals
// cfg.Sequence - 1, bumping it to cfg.Sequence in the same write.
func (r *Repo[T]) Update(ctx context.Context, cfg T) (T, error) {
	var zero T
	if err := r.Assert(cfg); err != nil {
		return zero, err
	}

	doc, err := ToMap(cfg)
	if err != nil {
		return zero, err
	}
	doc["_id"] = r.IDOf(cfg)

	res, ok, err := store.UpdateOne(ctx, r.Engine, r.Audit, r.Collection, store.UpdateOneOpts{
		Doc: doc,
		Query: store.Query{Selector: store.Selector{
			"_id":      r.IDOf(cfg),
			"sequence": r.SequenceOf(cfg) - 1,
		}},
	})
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, errs.NewInvalidStateError("Could not update configuration. Sequence does not match or configuration does not exist.")
	}

	var out T
	if err := FromMap(res.Record, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// Get looks up the record by id.
func (r *Repo[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	recs, err := r.Engine.Find(ctx, r.Collection, store.FindOptions{
		Selector: store.Selector{"_id": id},
		Limit:    1,
	})
	if err != nil {
		return zero, err
	}
	if len(recs) == 0 {
		return zero, errs.NewNotFoundError("Configuration not found.")
	}

	var out T
	if err := FromMap(recs[0], &out); err != nil {
		return zero, err
	}
	return out, nil
}

// ToMap and FromMap bridge a typed config struct and the map[string]any
// shape the store package speaks, round-tripping through bson so that every
// type's own `bson:"..."` tags govern the field names, instead of hand
// writing a marshaler per config type.
func ToMap(v any) (map[string]any, error) {
	data, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	// Decoding into map[string]any (not bson.M) makes nested documents decode
	// as map[string]any too, so callers can type-assert them.
	var m map[string]any
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func FromMap(m map[string]any, out any) error {
	data, err := bson.Marshal(bson.M(m))
	if err != nil {
		return err
	}
	return bson.Unmarshal(data, out)
}
