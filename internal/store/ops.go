package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"edv-core/internal/audit"
	"edv-core/internal/errs"
)

// Constraint is a single uniqueness probe: a query that must come back empty
// for the write to be allowed to proceed.
type Constraint struct {
	Selector Selector
	UseIndex []string
}

// InsertOneOpts parameterizes InsertOne.
type InsertOneOpts struct {
	Doc               map[string]any
	UniqueConstraints []Constraint
}

// Query is a selector plus planner hints, as built by the query compiler.
type Query struct {
	Selector Selector
	UseIndex []string
	Limit    int
}

// UpdateOneOpts parameterizes UpdateOne.
type UpdateOneOpts struct {
	Doc               map[string]any
	Query             Query
	Upsert            bool
	UniqueConstraints []Constraint
}

// Result is the outcome of a successful InsertOne/UpdateOne.
type Result struct {
	ID     string
	Rev    string
	Record map[string]any
}

// retryLimiter paces the conflict-retry loop so a storm of colliding writers
// backs off instead of hammering the engine; the write path below is "not atomic" by
// design, so the loop's politeness is the only throttle available.
var retryLimiter = rate.NewLimiter(rate.Every(2*time.Millisecond), 8)

func backoff(ctx context.Context) error {
	return retryLimiter.Wait(ctx)
}

// InsertOne implements the insertOne primitive: check each uniqueness
// constraint, then attempt the write, restarting on conflict. It is not
// atomic — a concurrent writer can still slip a colliding record in between
// the check and the write.
func InsertOne(ctx context.Context, eng Engine, log *audit.Log, collection string, opts InsertOneOpts) (*Result, error) {
	constraints := opts.UniqueConstraints
	if id, ok := opts.Doc["_id"].(string); ok && id != "" {
		constraints = append([]Constraint{{Selector: Selector{"_id": id}}}, constraints...)
	}

	for {
		if existing, ok, err := probeConstraints(ctx, eng, collection, constraints); err != nil {
			return nil, err
		} else if ok {
			return nil, errs.NewConstraintError("Duplicate value(s) in unique index.", existing)
		}

		var res PutResult
		var err error
		if id, ok := opts.Doc["_id"].(string); ok && id != "" {
			res, err = eng.Put(ctx, collection, opts.Doc)
		} else {
			res, err = eng.Post(ctx, collection, opts.Doc)
		}
		if err == ErrConflict {
			if err := backoff(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		record := cloneDoc(opts.Doc)
		record["_id"] = res.ID
		record["_rev"] = res.Rev
		if log != nil {
			log.Appendf("insertOne %s %s", collection, res.ID)
		}
		return &Result{ID: res.ID, Rev: res.Rev, Record: record}, nil
	}
}

// UpdateOne implements the updateOne primitive.
func UpdateOne(ctx context.Context, eng Engine, log *audit.Log, collection string, opts UpdateOneOpts) (*Result, bool, error) {
	for {
		matches, err := eng.Find(ctx, collection, FindOptions{Selector: opts.Query.Selector, Limit: 1, UseIndex: opts.Query.UseIndex})
		if err != nil {
			return nil, false, err
		}
		if len(matches) == 0 {
			if !opts.Upsert {
				return nil, false, nil
			}
			res, err := InsertOne(ctx, eng, log, collection, InsertOneOpts{Doc: opts.Doc, UniqueConstraints: opts.UniqueConstraints})
			if err != nil {
				return nil, false, err
			}
			return res, true, nil
		}
		existing := matches[0]
		targetID, _ := existing["_id"].(string)

		constraints := opts.UniqueConstraints
		if id, ok := opts.Doc["_id"].(string); ok && id != "" {
			constraints = append([]Constraint{{Selector: Selector{"_id": id}}}, constraints...)
		}
		if hit, ok, err := probeConstraintsExcluding(ctx, eng, collection, constraints, targetID); err != nil {
			return nil, false, err
		} else if ok {
			return nil, false, errs.NewConstraintError("Duplicate value(s) in unique index.", hit)
		}

		toWrite := cloneDoc(opts.Doc)
		toWrite["_id"] = targetID
		toWrite["_rev"] = existing["_rev"]

		res, err := eng.Put(ctx, collection, toWrite)
		if err == ErrConflict {
			if err := backoff(ctx); err != nil {
				return nil, false, err
			}
			continue
		}
		if err != nil {
			return nil, false, err
		}

		record := cloneDoc(opts.Doc)
		record["_id"] = res.ID
		record["_rev"] = res.Rev
		if log != nil {
			log.Appendf("updateOne %s %s", collection, res.ID)
		}
		return &Result{ID: res.ID, Rev: res.Rev, Record: record}, true, nil
	}
}

// probeConstraints runs every constraint concurrently, limit 1 each, and
// reports the first hit found, if any.
func probeConstraints(ctx context.Context, eng Engine, collection string, constraints []Constraint) (map[string]any, bool, error) {
	return probeConstraintsExcluding(ctx, eng, collection, constraints, "")
}

func probeConstraintsExcluding(ctx context.Context, eng Engine, collection string, constraints []Constraint, excludeID string) (map[string]any, bool, error) {
	if len(constraints) == 0 {
		return nil, false, nil
	}

	type outcome struct {
		rec map[string]any
		err error
	}
	results := make([]outcome, len(constraints))
	var wg sync.WaitGroup
	for i, c := range constraints {
		wg.Add(1)
		go func(i int, c Constraint) {
			defer wg.Done()
			recs, err := eng.Find(ctx, collection, FindOptions{Selector: c.Selector, Limit: 1, UseIndex: c.UseIndex})
			if err != nil {
				results[i] = outcome{err: err}
				return
			}
			if len(recs) > 0 {
				results[i] = outcome{rec: recs[0]}
			}
		}(i, c)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, false, r.err
		}
		if r.rec == nil {
			continue
		}
		if excludeID != "" {
			if id, _ := r.rec["_id"].(string); id == excludeID {
				continue
			}
		}
		return r.rec, true, nil
	}
	return nil, false, nil
}
