// Package purge implements the tombstone sweep: a background task
// that walks a collection's records and physically deletes anything marked
// _deleted. At most one sweep per collection runs at a time; a trigger that
// arrives while one is in flight coalesces onto it instead of starting a
// second pass.
package purge

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"edv-core/internal/audit"
	"edv-core/internal/store"
)

// Sweeper runs purges against one engine.
type Sweeper struct {
	Engine  store.Engine
	Audit   *audit.Log
	Logger  *log.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// NewSweeper builds a sweeper throttled to at most one pass per interval,
// shared across all collections, to keep a burst of deletes from turning into a burst of
// full-collection scans.
func NewSweeper(eng store.Engine, log *audit.Log) *Sweeper {
	return &Sweeper{
		Engine:   eng,
		Audit:    log,
		limiter:  rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		inFlight: make(map[string]chan struct{}),
	}
}

func (s *Sweeper) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

// Purge triggers a sweep of collection, coalescing with any sweep already in
// flight for the same collection. It never returns an error to the caller —
// failures are logged and left for the next sweep, matching the design's
// "errors are swallowed, operation is idempotent" contract.
func (s *Sweeper) Purge(ctx context.Context, collection string) {
	s.mu.Lock()
	if done, ok := s.inFlight[collection]; ok {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.inFlight[collection] = done
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, collection)
		s.mu.Unlock()
		close(done)
	}()

	if err := s.sweep(ctx, collection); err != nil {
		s.logger().Printf("purge: sweep of %s failed: %v", collection, err)
	}
}

func (s *Sweeper) sweep(ctx context.Context, collection string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	recs, err := s.Engine.Find(ctx, collection, store.FindOptions{
		Selector: store.Selector{"_deleted": true},
	})
	if err != nil {
		return err
	}

	for _, rec := range recs {
		id, _ := rec["_id"].(string)
		if id == "" {
			continue
		}
		if err := s.Engine.Delete(ctx, collection, id); err != nil {
			s.logger().Printf("purge: could not remove %s/%s: %v", collection, id, err)
			continue
		}
		if s.Audit != nil {
			s.Audit.Appendf("purge %s %s", collection, id)
		}
	}
	return nil
}
