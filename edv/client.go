package edv

import (
	"context"
	"errors"
	"fmt"
	"io"

	"edv-core/internal/chunks"
	cr "edv-core/internal/crypto"
	"edv-core/internal/docs"
	"edv-core/internal/edvconfig"
	"edv-core/internal/errs"
	"edv-core/internal/query"
	"edv-core/internal/secrets"
)

// PouchEdvClient is an unlocked vault's API surface: the derived keys plus
// the Transport the external encryption core reads and writes through.
type PouchEdvClient struct {
	storage         *StorageContext
	transport       Transport
	deleteTransport *deleteTransport
	keys            *secrets.Keys
	edvID           string
}

func newClient(sc *StorageContext, transport Transport, keys *secrets.Keys, edvID string) *PouchEdvClient {
	return &PouchEdvClient{
		storage:         sc,
		transport:       transport,
		deleteTransport: &deleteTransport{Transport: transport},
		keys:            keys,
		edvID:           edvID,
	}
}

// ResolveKey returns the multibase-encoded public form of keyID if it names
// this client's key-agreement key, the only key material a keyResolver may
// ever hand back to the external encryption core.
func (c *PouchEdvClient) ResolveKey(keyID string) (string, error) {
	switch {
	case c.keys.X25519 != nil && c.keys.X25519.ID == keyID:
		return c.keys.X25519.PublicKeyMultibase()
	case c.keys.P256 != nil && c.keys.P256.ID == keyID:
		return c.keys.P256.PublicKeyMultibase()
	default:
		return "", errs.NewNotFoundError("Key not found.")
	}
}

// CreateEdvOpts parameterizes CreateEdv.
type CreateEdvOpts struct {
	Config        edvconfig.Config
	Password      string
	CipherVersion string
}

// CreateEdvResult is returned by CreateEdv.
type CreateEdvResult struct {
	Config edvconfig.Config
	Client *PouchEdvClient // nil when opts.Password is empty
}

// CreateEdv creates a vault, optionally generating and wrapping a fresh
// secret from a password.
func CreateEdv(ctx context.Context, sc *StorageContext, transport Transport, opts CreateEdvOpts) (*CreateEdvResult, error) {
	if err := sc.Initialize(ctx); err != nil {
		return nil, err
	}

	cfg := opts.Config
	var keys *secrets.Keys

	if opts.Password != "" {
		if cfg.Hmac.ID != "" || cfg.KeyAgreementKey.ID != "" {
			return nil, errors.New(`"config" must not have "hmac" or "keyAgreementKey" if these are to be populated using locally generated secrets.`)
		}
		cipherVersion := opts.CipherVersion
		if cipherVersion == "" {
			cipherVersion = secrets.CipherRecommended
		}

		derived, err := lazyCreateSecret(ctx, sc, cfg.ID, opts.Password, cipherVersion)
		if err != nil {
			return nil, err
		}
		keys = derived

		cfg.Hmac = secrets.KeyRef{ID: keys.Hmac.ID, Type: cr.HmacType}
		if keys.P256 != nil {
			cfg.KeyAgreementKey = secrets.KeyRef{ID: keys.P256.ID, Type: cr.P256KakType}
		} else {
			cfg.KeyAgreementKey = secrets.KeyRef{ID: keys.X25519.ID, Type: cr.X25519KakType}
		}
	}

	created, err := transport.CreateEdv(ctx, cfg)
	if err != nil {
		if _, ok := errs.AsConstraint(err); ok {
			return nil, errs.NewDuplicateError("Duplicate EDV configuration.")
		}
		return nil, err
	}

	var client *PouchEdvClient
	if keys != nil {
		client = newClient(sc, transport, keys, created.ID)
	}
	return &CreateEdvResult{Config: created, Client: client}, nil
}

// lazyCreateSecret generates a fresh secret, or reuses one already on disk
// for the same vault id if the password unlocks it.
func lazyCreateSecret(ctx context.Context, sc *StorageContext, id, password, cipherVersion string) (*secrets.Keys, error) {
	gen, err := secrets.Generate(secrets.GenerateOpts{ID: id, Password: password, CipherVersion: cipherVersion})
	if err != nil {
		return nil, err
	}

	if _, err := sc.Secrets.Insert(ctx, gen.Config); err == nil {
		return &gen.Keys, nil
	} else if _, ok := errs.AsConstraint(err); !ok {
		return nil, err
	}

	if _, cfgErr := sc.Configs.Get(ctx, id); cfgErr == nil {
		return nil, errs.NewDuplicateError("Duplicate EDV configuration.")
	}

	existing, err := sc.Secrets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keys, ok, err := secrets.Decrypt(secrets.DecryptOpts{Config: existing, Password: password})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("Secret already exists for EDV ID (%s) but password to unlock it is invalid.", id)
	}
	return keys, nil
}

// FromLocalSecretsOpts parameterizes FromLocalSecrets.
type FromLocalSecretsOpts struct {
	EdvID    string
	Password string
}

// FromLocalSecrets unlocks an existing vault from its stored secret.
func FromLocalSecrets(ctx context.Context, sc *StorageContext, transport Transport, opts FromLocalSecretsOpts) (*PouchEdvClient, error) {
	if err := sc.Initialize(ctx); err != nil {
		return nil, err
	}

	type cfgOutcome struct {
		cfg edvconfig.Config
		err error
	}
	cfgCh := make(chan cfgOutcome, 1)
	go func() {
		cfg, err := sc.Configs.Get(ctx, opts.EdvID)
		cfgCh <- cfgOutcome{cfg, err}
	}()

	secretCfg, err := sc.Secrets.Get(ctx, opts.EdvID)
	if err != nil {
		return nil, err
	}
	keys, ok, err := secrets.Decrypt(secrets.DecryptOpts{Config: secretCfg, Password: opts.Password})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("Invalid password.")
	}

	outcome := <-cfgCh
	if outcome.err != nil {
		return nil, outcome.err
	}

	return newClient(sc, transport, keys, outcome.cfg.ID), nil
}

// Insert stores a brand new encrypted document.
func (c *PouchEdvClient) Insert(ctx context.Context, encrypted docs.Document) error {
	return c.transport.Insert(ctx, encrypted)
}

// Update replaces an existing encrypted document.
func (c *PouchEdvClient) Update(ctx context.Context, encrypted docs.Document) error {
	return c.transport.Update(ctx, encrypted, false)
}

// Delete tombstones an encrypted document via the delete-forcing transport.
func (c *PouchEdvClient) Delete(ctx context.Context, encrypted docs.Document) error {
	return c.deleteTransport.Update(ctx, encrypted, true)
}

// Get fetches a single encrypted document by id.
func (c *PouchEdvClient) Get(ctx context.Context, id string) (docs.Document, error) {
	return c.transport.Get(ctx, id)
}

// GetStream returns the sealed content of a chunked document as a sequential
// byte stream, reading chunk 0, 1, 2, ... in order.
func (c *PouchEdvClient) GetStream(ctx context.Context, id string) (io.ReadCloser, error) {
	return c.transport.GetStream(ctx, id)
}

// Count reports how many documents match q without returning their bodies.
func (c *PouchEdvClient) Count(ctx context.Context, q query.AttributeQuery) (int, error) {
	q.Count = true
	res, err := c.transport.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Find runs q, fetching one extra record to compute HasMore and trimming
// the surplus before returning.
func (c *PouchEdvClient) Find(ctx context.Context, q query.AttributeQuery) (FindResult, error) {
	limit := q.Limit
	probe := q
	if limit > 0 {
		probe.Limit = limit + 1
	}

	res, err := c.transport.Find(ctx, probe)
	if err != nil {
		return FindResult{}, err
	}

	if limit > 0 && len(res.Documents) > limit {
		res.Documents = res.Documents[:limit]
		res.HasMore = true
	} else {
		res.HasMore = false
	}
	return res, nil
}

// GetConfig returns this vault's current config.
func (c *PouchEdvClient) GetConfig(ctx context.Context) (edvconfig.Config, error) {
	return c.transport.GetConfig(ctx, c.edvID)
}

// UpdateConfig persists a sequence-gated config change.
func (c *PouchEdvClient) UpdateConfig(ctx context.Context, cfg edvconfig.Config) (edvconfig.Config, error) {
	return c.transport.UpdateConfig(ctx, cfg)
}

// StoreChunk writes one ordered chunk of an encrypted document.
func (c *PouchEdvClient) StoreChunk(ctx context.Context, docID string, chunk chunks.Chunk) (map[string]any, error) {
	return c.transport.StoreChunk(ctx, docID, chunk)
}

// GetChunk fetches one ordered chunk of an encrypted document.
func (c *PouchEdvClient) GetChunk(ctx context.Context, docID string, index int64) (map[string]any, error) {
	return c.transport.GetChunk(ctx, docID, index)
}
