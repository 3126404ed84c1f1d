// Package chunks implements per-document ordered chunk storage,
// keyed on (vault, document, chunk index), with a sequence-parity check
// against the associated document at every write.
package chunks

import (
	"context"
	"strconv"

	"edv-core/internal/audit"
	"edv-core/internal/config"
	"edv-core/internal/docs"
	"edv-core/internal/errs"
	"edv-core/internal/store"
)

const Collection = "edv-storage-chunk"

// Chunk is one ordered slice of an encrypted document's content.
type Chunk struct {
	Sequence int64          `bson:"sequence" json:"sequence"`
	Index    int64          `bson:"index" json:"index"`
	Offset   int64          `bson:"offset" json:"offset"`
	Jwe      map[string]any `bson:"jwe" json:"jwe"`
}

// Repo is the chunk repository for one local storage context.
type Repo struct {
	Engine store.Engine
	Audit  *audit.Log
	Docs   *docs.Repo
}

func chunkID(edvID, docID string, index int64) string {
	return edvID + ":" + docID + ":" + strconv.FormatInt(index, 10)
}

// Upsert writes a chunk, requiring chunk.Sequence to match the associated
// document's current sequence.
func (r *Repo) Upsert(ctx context.Context, edvID, docID string, chunk Chunk) (map[string]any, error) {
	doc, err := r.Docs.Get(ctx, edvID, docID)
	if err != nil {
		return nil, err
	}
	docFields, _ := doc["doc"].(map[string]any)
	docSeq, _ := docFields["sequence"].(int64)
	if chunk.Sequence != docSeq {
		return nil, errs.NewInvalidStateErrorWithSeq(
			"Could not update document chunk. Sequence does not match the associated document.",
			docSeq, chunk.Sequence,
		)
	}

	id := chunkID(edvID, docID, chunk.Index)
	chunkMap, err := config.ToMap(chunk)
	if err != nil {
		return nil, err
	}
	rec := map[string]any{
		"_id":        id,
		"localEdvId": edvID,
		"docId":      docID,
		"chunk":      chunkMap,
	}

	res, ok, err := store.UpdateOne(ctx, r.Engine, r.Audit, Collection, store.UpdateOneOpts{
		Doc:    rec,
		Query:  store.Query{Selector: store.Selector{"_id": id}},
		Upsert: true,
	})
	if err != nil {
		if ce, isConstraint := errs.AsConstraint(err); isConstraint {
			if existingID, _ := ce.Existing["_id"].(string); existingID == id {
				return ce.Existing, nil
			}
		}
		return nil, err
	}
	if !ok {
		return nil, errs.NewInvalidStateError("Could not update document chunk.")
	}
	return res.Record, nil
}

// Get looks up a single chunk by (edvID, docID, index).
func (r *Repo) Get(ctx context.Context, edvID, docID string, index int64) (map[string]any, error) {
	id := chunkID(edvID, docID, index)
	recs, err := r.Engine.Find(ctx, Collection, store.FindOptions{
		Selector: store.Selector{"_id": id},
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errs.NewNotFoundError("Document chunk not found.")
	}
	return recs[0], nil
}

// Remove marks a chunk as deleted, best-effort, returning false if it was
// already gone.
func (r *Repo) Remove(ctx context.Context, edvID, docID string, index int64) (bool, error) {
	rec, err := r.Get(ctx, edvID, docID, index)
	if err != nil {
		if _, ok := errs.AsNotFound(err); ok {
			return false, nil
		}
		return false, err
	}
	rec["_deleted"] = true

	if _, err := r.Engine.Put(ctx, Collection, rec); err != nil {
		if err == store.ErrConflict {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
