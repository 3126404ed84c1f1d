// Package store implements the two non-atomic uniqueness-checking primitives
// (insertOne/updateOne) the rest of the vault is built on, plus the document
// engine contract they run against: a collection keyed by _id, with put/post,
// a selector-based find, and an optimistic-concurrency conflict on stale
// writes — the same shape a local CouchDB/PouchDB-style engine exposes, here
// satisfied either by an in-memory engine or by a MongoDB collection.
package store

import (
	"context"
	"errors"
)

// ErrConflict is returned by Engine.Put when the record's revision token is
// stale, standing in for the design's HTTP 409.
var ErrConflict = errors.New("store: conflict")

// Selector is an engine-agnostic query filter. Its shape mirrors what the
// document/chunk/config layers build: plain equality, and the small set of
// Mongo-style operators ($in, $all, $or, $gt) that the query compiler
// emits.
type Selector map[string]any

// FindOptions parameterizes Engine.Find.
type FindOptions struct {
	Selector Selector
	Limit    int
	UseIndex []string // collection, index-name — a planner hint only
}

// PutResult is returned by a successful Put/Post.
type PutResult struct {
	ID  string
	Rev string
}

// IndexSpec describes a secondary index to ensure exists before it is
// queried, matching the document repo's partial-filter indexes.
type IndexSpec struct {
	Name          string
	Fields        []string
	PartialExists []string // field names that must exist for a record to be indexed
}

// Engine is the local document engine contract. Implementations must
// be safe for concurrent use.
type Engine interface {
	// Put writes doc, keyed by doc["_id"]. If doc carries a non-empty "_rev"
	// field, the write only succeeds if the stored record's "_rev" still
	// matches (optimistic concurrency); otherwise ErrConflict. If "_rev" is
	// empty, Put behaves as a fresh insert and fails with ErrConflict if the
	// _id already exists.
	Put(ctx context.Context, collection string, doc map[string]any) (PutResult, error)

	// Post inserts doc with a server-chosen _id if doc has none.
	Post(ctx context.Context, collection string, doc map[string]any) (PutResult, error)

	// Find executes a selector-based query, returning raw records (each
	// still carrying _id/_rev) in unspecified order.
	Find(ctx context.Context, collection string, opts FindOptions) ([]map[string]any, error)

	// EnsureIndex is idempotent; implementations may no-op if the engine has
	// no concept of secondary indexes (e.g. the in-memory engine, which
	// always scans).
	EnsureIndex(ctx context.Context, collection string, spec IndexSpec) error

	// Delete physically removes a record, used only by the purge sweep to
	// reclaim tombstones. It is not part of the CRUD contract callers build
	// documents/chunks on top of.
	Delete(ctx context.Context, collection, id string) error
}
