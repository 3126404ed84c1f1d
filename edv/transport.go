package edv

import (
	"context"
	"io"

	"edv-core/internal/chunks"
	"edv-core/internal/docs"
	"edv-core/internal/edvconfig"
	"edv-core/internal/query"
)

// FindResult is what a Find call reports back, mirroring the transport
// contract's {documents?, count?, hasMore?} shape.
type FindResult struct {
	Documents []map[string]any
	Count     int
	HasMore   bool
}

// Transport is the boundary the external encryption core is handed:
// every document/chunk it stores or retrieves already carries ciphertext
// this module never inspects. PouchEdvClient only ever holds a Transport —
// it never talks to the storage repos directly once a client exists.
type Transport interface {
	CreateEdv(ctx context.Context, cfg edvconfig.Config) (edvconfig.Config, error)
	GetConfig(ctx context.Context, id string) (edvconfig.Config, error)
	UpdateConfig(ctx context.Context, cfg edvconfig.Config) (edvconfig.Config, error)

	Insert(ctx context.Context, encrypted docs.Document) error
	Update(ctx context.Context, encrypted docs.Document, deleted bool) error
	Get(ctx context.Context, id string) (docs.Document, error)
	GetStream(ctx context.Context, docID string) (io.ReadCloser, error)
	Find(ctx context.Context, q query.AttributeQuery) (FindResult, error)

	StoreChunk(ctx context.Context, docID string, chunk chunks.Chunk) (map[string]any, error)
	GetChunk(ctx context.Context, docID string, chunkIndex int64) (map[string]any, error)
}

// deleteTransport wraps a Transport so Update always forwards deleted=true,
// the local analogue of the design's separate "_deleteTransport": embedding
// means every other method passes straight through unchanged.
type deleteTransport struct {
	Transport
}

func (d *deleteTransport) Update(ctx context.Context, encrypted docs.Document, _ bool) error {
	return d.Transport.Update(ctx, encrypted, true)
}
