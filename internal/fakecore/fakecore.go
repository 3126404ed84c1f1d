// Package fakecore is a stand-in for the external encryption core the
// design deliberately leaves out of scope, used by the edv tests and the
// cmd/edvctl demo. It implements edv.Transport directly against the local
// storage repos, sealing document content with XChaCha20-Poly1305, so
// integration tests can drive a real PouchEdvClient without pulling in the
// actual edv-client-core dependency.
package fakecore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	xchacha "golang.org/x/crypto/chacha20poly1305"

	"edv-core/edv"
	"edv-core/internal/chunks"
	"edv-core/internal/docs"
	"edv-core/internal/edvconfig"
	"edv-core/internal/errs"
	"edv-core/internal/query"
)

// Core is a fake encryption core: it seals/opens document content with a
// fixed key and otherwise delegates straight to the storage repos.
type Core struct {
	Docs    *docs.Repo
	Chunks  *chunks.Repo
	Configs *edvconfig.Repo
	EdvID   string
	key     []byte
}

// New builds a Core bound to one vault, sealing content under key (32
// bytes).
func New(d *docs.Repo, c *chunks.Repo, cfg *edvconfig.Repo, edvID string, key []byte) (*Core, error) {
	if len(key) != 32 {
		return nil, errors.New("fakecore: key must be 32 bytes")
	}
	return &Core{Docs: d, Chunks: c, Configs: cfg, EdvID: edvID, key: append([]byte(nil), key...)}, nil
}

func (c *Core) seal(plaintext []byte) (string, error) {
	aead, err := xchacha.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, xchacha.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := aead.Seal(nonce, nonce, plaintext, []byte(c.EdvID))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (c *Core) open(sealed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	aead, err := xchacha.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < xchacha.NonceSizeX {
		return nil, errors.New("fakecore: ciphertext too short")
	}
	nonce, ct := raw[:xchacha.NonceSizeX], raw[xchacha.NonceSizeX:]
	return aead.Open(nil, nonce, ct, []byte(c.EdvID))
}

// SealContent produces the opaque "jwe" map a real core would attach to a
// Document, from plaintext bytes.
func (c *Core) SealContent(plaintext []byte) (map[string]any, error) {
	ct, err := c.seal(plaintext)
	if err != nil {
		return nil, err
	}
	return map[string]any{"ciphertext": ct}, nil
}

// OpenContent reverses SealContent.
func (c *Core) OpenContent(jwe map[string]any) ([]byte, error) {
	ct, _ := jwe["ciphertext"].(string)
	if ct == "" {
		return nil, errors.New("fakecore: missing ciphertext")
	}
	return c.open(ct)
}

func (c *Core) CreateEdv(ctx context.Context, cfg edvconfig.Config) (edvconfig.Config, error) {
	return c.Configs.Insert(ctx, cfg)
}

func (c *Core) GetConfig(ctx context.Context, id string) (edvconfig.Config, error) {
	return c.Configs.Get(ctx, id)
}

func (c *Core) UpdateConfig(ctx context.Context, cfg edvconfig.Config) (edvconfig.Config, error) {
	return c.Configs.Update(ctx, cfg)
}

func (c *Core) Insert(ctx context.Context, encrypted docs.Document) error {
	_, err := c.Docs.Insert(ctx, c.EdvID, encrypted)
	return err
}

func (c *Core) Update(ctx context.Context, encrypted docs.Document, deleted bool) error {
	_, err := c.Docs.Upsert(ctx, c.EdvID, encrypted, deleted)
	return err
}

func (c *Core) Get(ctx context.Context, id string) (docs.Document, error) {
	rec, err := c.Docs.Get(ctx, c.EdvID, id)
	if err != nil {
		return docs.Document{}, err
	}
	return decodeDocument(rec), nil
}

func decodeDocument(rec map[string]any) docs.Document {
	docField, _ := rec["doc"].(map[string]any)
	var d docs.Document
	d.ID, _ = docField["id"].(string)
	d.Sequence, _ = docField["sequence"].(int64)
	d.Jwe, _ = docField["jwe"].(map[string]any)
	d.Meta, _ = docField["meta"].(map[string]any)
	return d
}

// Find answers a compiled attribute query straight from the doc repo. It
// never trims for HasMore — that's PouchEdvClient's job, operating one layer
// above the transport.
func (c *Core) Find(ctx context.Context, q query.AttributeQuery) (edv.FindResult, error) {
	compiled, err := c.Docs.CreateQuery(c.EdvID, q)
	if err != nil {
		return edv.FindResult{}, err
	}
	recs, err := c.Docs.Find(ctx, c.EdvID, compiled)
	if err != nil {
		return edv.FindResult{}, err
	}
	if q.Count {
		return edv.FindResult{Count: len(recs)}, nil
	}
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		out[i], _ = rec["doc"].(map[string]any)
	}
	return edv.FindResult{Documents: out}, nil
}

func (c *Core) StoreChunk(ctx context.Context, docID string, chunk chunks.Chunk) (map[string]any, error) {
	return c.Chunks.Upsert(ctx, c.EdvID, docID, chunk)
}

func (c *Core) GetChunk(ctx context.Context, docID string, chunkIndex int64) (map[string]any, error) {
	return c.Chunks.Get(ctx, c.EdvID, docID, chunkIndex)
}

// GetStream opens a sequential reader over a chunked document's sealed
// content, fetching chunk 0, 1, 2, ... one at a time and opening each with
// the same key as SealContent/OpenContent. It fails up front if chunk 0 does
// not exist, the same not-found behavior Get has for unchunked documents.
func (c *Core) GetStream(ctx context.Context, docID string) (io.ReadCloser, error) {
	if _, err := c.Chunks.Get(ctx, c.EdvID, docID, 0); err != nil {
		return nil, err
	}
	return &chunkStream{ctx: ctx, core: c, docID: docID}, nil
}

// chunkStream reads a chunked document's sealed bytes in ascending index
// order, opening each chunk's jwe as it is consumed.
type chunkStream struct {
	ctx   context.Context
	core  *Core
	docID string
	index int64
	buf   []byte
}

func (s *chunkStream) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		rec, err := s.core.Chunks.Get(s.ctx, s.core.EdvID, s.docID, s.index)
		if err != nil {
			if _, ok := errs.AsNotFound(err); ok {
				return 0, io.EOF
			}
			return 0, err
		}
		chunkFields, _ := rec["chunk"].(map[string]any)
		jwe, _ := chunkFields["jwe"].(map[string]any)
		raw, err := s.core.OpenContent(jwe)
		if err != nil {
			return 0, err
		}
		s.index++
		s.buf = raw
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *chunkStream) Close() error { return nil }
