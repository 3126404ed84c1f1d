// Package edv composes the storage primitives, secrets, document, chunk,
// and query layers into the vault-facing API surface: PouchEdvClient.
package edv

import (
	"context"
	"sync"

	"edv-core/internal/audit"
	"edv-core/internal/chunks"
	"edv-core/internal/config"
	"edv-core/internal/docs"
	"edv-core/internal/edvconfig"
	"edv-core/internal/purge"
	"edv-core/internal/secrets"
	"edv-core/internal/store"
)

const secretCollection = "edv-storage-secret"

// StorageContext is the process-wide (or per-test) set of collection
// handles the client is built from. It replaces the hidden module-level
// singletons a naive port would carry: one value, created once, whose
// Initialize is idempotent under concurrent callers.
type StorageContext struct {
	Engine store.Engine
	Audit  *audit.Log

	Secrets *config.Repo[secrets.Config]
	Configs *edvconfig.Repo
	Docs    *docs.Repo
	Chunks  *chunks.Repo
	Purge   *purge.Sweeper

	once    sync.Once
	initErr error
}

// NewStorageContext builds a context over eng. Initialize must be called
// (directly or via a client constructor) before using any of its repos.
func NewStorageContext(eng store.Engine) *StorageContext {
	return &StorageContext{Engine: eng, Audit: audit.New()}
}

// Initialize lazily wires every collection handle exactly once; concurrent
// callers block on the same in-flight initialization rather than racing it.
func (sc *StorageContext) Initialize(ctx context.Context) error {
	sc.once.Do(func() {
		sc.Docs = &docs.Repo{Engine: sc.Engine, Audit: sc.Audit}
		if err := sc.Docs.EnsureIndexes(ctx); err != nil {
			sc.initErr = err
			return
		}

		cfgRepo, err := edvconfig.New(ctx, sc.Engine, sc.Audit)
		if err != nil {
			sc.initErr = err
			return
		}
		sc.Configs = cfgRepo

		sc.Secrets = &config.Repo[secrets.Config]{
			Engine:     sc.Engine,
			Audit:      sc.Audit,
			Collection: secretCollection,
			Assert:     secrets.Assert,
			IDOf:       func(c secrets.Config) string { return c.ID },
			SequenceOf: func(c secrets.Config) int64 { return c.Sequence },
		}

		sc.Chunks = &chunks.Repo{Engine: sc.Engine, Audit: sc.Audit, Docs: sc.Docs}
		sc.Purge = purge.NewSweeper(sc.Engine, sc.Audit)
	})
	return sc.initErr
}
