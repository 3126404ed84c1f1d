// Package docs implements encrypted-document CRUD: record envelope
// construction, blinded-attribute index maintenance, upsert with a sequence
// guard, and find. The query compiler that turns a structured attribute
// query into a selector lives in the sibling query package; CreateQuery
// here is just the entry point that calls it and re-keys the result onto
// the vault the caller asked about.
package docs

import (
	"context"
	"net/url"
	"strings"

	"edv-core/internal/audit"
	"edv-core/internal/config"
	"edv-core/internal/errs"
	"edv-core/internal/idcodec"
	"edv-core/internal/query"
	"edv-core/internal/store"
)

const Collection = "edv-storage-doc"

// Attribute is one blinded name/value pair contributed by an indexed entry.
type Attribute struct {
	Name   string `bson:"name" json:"name"`
	Value  string `bson:"value" json:"value"`
	Unique bool   `bson:"unique,omitempty" json:"unique,omitempty"`
}

// IndexedEntry is one blinding hmac's contribution to a document's index.
type IndexedEntry struct {
	HmacID     string      `bson:"hmacId" json:"hmacId"`
	HmacType   string      `bson:"hmacType" json:"hmacType"`
	Sequence   int64       `bson:"sequence" json:"sequence"`
	Attributes []Attribute `bson:"attributes" json:"attributes"`
}

// Document is the caller-visible encrypted document.
type Document struct {
	ID       string         `bson:"id" json:"id"`
	Sequence int64          `bson:"sequence" json:"sequence"`
	Jwe      map[string]any `bson:"jwe" json:"jwe"`
	Indexed  []IndexedEntry `bson:"indexed,omitempty" json:"indexed,omitempty"`
	Meta     map[string]any `bson:"meta,omitempty" json:"meta,omitempty"`
}

// Repo is the document repository for one local storage context.
type Repo struct {
	Engine store.Engine
	Audit  *audit.Log
}

// EnsureIndexes creates the three partial-filter secondary indexes this
// collection's find/createQuery paths rely on.
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	specs := []store.IndexSpec{
		{Name: "attributes", Fields: []string{"localEdvId", "attributes"}, PartialExists: []string{"attributes"}},
		{Name: "attributes.name", Fields: []string{"localEdvId", "attributeNames"}, PartialExists: []string{"attributeNames"}},
		{Name: "attributes.unique", Fields: []string{"localEdvId", "uniqueAttributes"}, PartialExists: []string{"uniqueAttributes"}},
	}
	for _, s := range specs {
		if err := r.Engine.EnsureIndex(ctx, Collection, s); err != nil {
			return err
		}
	}
	return nil
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// buildIndexArrays rebuilds the three auxiliary arrays from doc.Indexed, the
// same derivation run on every write.
func buildIndexArrays(indexed []IndexedEntry) (attributes, attributeNames, uniqueAttributes []string) {
	for _, entry := range indexed {
		h := escapeComponent(entry.HmacID)
		for _, attr := range entry.Attributes {
			name := h + ":" + escapeComponent(attr.Name)
			full := name + ":" + escapeComponent(attr.Value)
			attributes = append(attributes, full)
			attributeNames = append(attributeNames, name)
			if attr.Unique {
				uniqueAttributes = append(uniqueAttributes, full)
			}
		}
	}
	return
}

func buildRecord(edvID string, doc Document) (map[string]any, error) {
	if doc.ID == "" {
		return nil, errs.NewTypeError("docs: document id is required")
	}
	if err := idcodec.AssertValid(doc.ID); err != nil {
		return nil, err
	}
	docMap, err := config.ToMap(doc)
	if err != nil {
		return nil, err
	}

	attributes, names, unique := buildIndexArrays(doc.Indexed)
	rec := map[string]any{
		"_id":        edvID + ":" + doc.ID,
		"localEdvId": edvID,
		"doc":        docMap,
	}
	if len(attributes) > 0 {
		rec["attributes"] = toAnySlice(attributes)
	}
	if len(names) > 0 {
		rec["attributeNames"] = toAnySlice(names)
	}
	if len(unique) > 0 {
		rec["uniqueAttributes"] = toAnySlice(unique)
	}
	return rec, nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func uniqueConstraint(edvID string, rec map[string]any) []store.Constraint {
	unique, _ := rec["uniqueAttributes"].([]any)
	if len(unique) == 0 {
		return nil
	}
	return []store.Constraint{{
		Selector: store.Selector{
			"localEdvId":       edvID,
			"uniqueAttributes": map[string]any{"$in": unique},
		},
		UseIndex: []string{"edv-doc", "attributes.unique"},
	}}
}

// Insert stores a brand new document.
func (r *Repo) Insert(ctx context.Context, edvID string, doc Document) (map[string]any, error) {
	rec, err := buildRecord(edvID, doc)
	if err != nil {
		return nil, err
	}
	res, err := store.InsertOne(ctx, r.Engine, r.Audit, Collection, store.InsertOneOpts{
		Doc:               rec,
		UniqueConstraints: uniqueConstraint(edvID, rec),
	})
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Upsert creates or replaces a document, sequence-gated; deleted marks the
// write as a tombstone rather than removing the record outright.
func (r *Repo) Upsert(ctx context.Context, edvID string, doc Document, deleted bool) (map[string]any, error) {
	rec, err := buildRecord(edvID, doc)
	if err != nil {
		return nil, err
	}
	if deleted {
		rec["_deleted"] = true
	}
	id := rec["_id"].(string)

	res, ok, err := store.UpdateOne(ctx, r.Engine, r.Audit, Collection, store.UpdateOneOpts{
		Doc: rec,
		Query: store.Query{Selector: store.Selector{
			"_id":          id,
			"doc.sequence": doc.Sequence - 1,
		}},
		Upsert:            true,
		UniqueConstraints: uniqueConstraint(edvID, rec),
	})
	if err != nil {
		if ce, ok := errs.AsConstraint(err); ok {
			if existingID, _ := ce.Existing["_id"].(string); existingID == id {
				return nil, errs.NewInvalidStateError("Could not update document. Sequence does not match.")
			}
		}
		return nil, err
	}
	if !ok {
		return nil, errs.NewInvalidStateError("Could not update document. Sequence does not match.")
	}
	return res.Record, nil
}

// Get looks up a document by its logical id within edvID.
func (r *Repo) Get(ctx context.Context, edvID, id string) (map[string]any, error) {
	recs, err := r.Engine.Find(ctx, Collection, store.FindOptions{
		Selector: store.Selector{"_id": edvID + ":" + id},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errs.NewNotFoundError("Document not found.")
	}
	return recs[0], nil
}

// Find runs a selector query, forcing localEdvId into the filter if the
// caller's selector omits it.
func (r *Repo) Find(ctx context.Context, edvID string, q store.Query) ([]map[string]any, error) {
	sel := store.Selector{}
	for k, v := range q.Selector {
		sel[k] = v
	}
	if _, ok := sel["localEdvId"]; !ok {
		sel["localEdvId"] = edvID
	}
	return r.Engine.Find(ctx, Collection, store.FindOptions{Selector: sel, UseIndex: q.UseIndex, Limit: q.Limit})
}

// CreateQuery compiles a structured attribute query into a selector
// ready for Find.
func (r *Repo) CreateQuery(edvID string, q query.AttributeQuery) (store.Query, error) {
	return query.Compile(edvID, q)
}
