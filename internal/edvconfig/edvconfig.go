// Package edvconfig implements the per-vault metadata repository:
// id, controller, a sequence counter, and references to the hmac and
// key-agreement keys whose material lives in the paired secret config.
package edvconfig

import (
	"context"

	"edv-core/internal/audit"
	"edv-core/internal/config"
	"edv-core/internal/errs"
	"edv-core/internal/idcodec"
	"edv-core/internal/secrets"
	"edv-core/internal/store"
)

const Collection = "edv-storage-config"

// Config is the persisted vault config record.
type Config struct {
	ID              string         `bson:"id" json:"id"`
	Controller      string         `bson:"controller" json:"controller"`
	Sequence        int64          `bson:"sequence" json:"sequence"`
	Hmac            secrets.KeyRef `bson:"hmac" json:"hmac"`
	KeyAgreementKey secrets.KeyRef `bson:"keyAgreementKey" json:"keyAgreementKey"`
}

// MaxSequence is the largest sequence value this repository accepts (2^53-2,
// mirroring the design's safe-integer ceiling).
const MaxSequence = (1 << 53) - 2

func assertConfig(c Config) error {
	if c.ID == "" {
		return errs.NewTypeError("edvconfig: id is required")
	}
	if err := idcodec.AssertValid(c.ID); err != nil {
		return err
	}
	if c.Sequence < 0 || c.Sequence > MaxSequence {
		return errs.NewTypeError("edvconfig: sequence out of range")
	}
	if c.Hmac.ID == "" || c.Hmac.Type == "" {
		return errs.NewTypeError("edvconfig: hmac reference is required")
	}
	if c.KeyAgreementKey.ID == "" || c.KeyAgreementKey.Type == "" {
		return errs.NewTypeError("edvconfig: keyAgreementKey reference is required")
	}
	return nil
}

// Repo wraps the generic config repository with the controller secondary
// index this collection additionally maintains.
type Repo struct {
	inner *config.Repo[Config]
	eng   store.Engine
}

// New builds a repository over eng, ensuring the controller index exists.
func New(ctx context.Context, eng store.Engine, log *audit.Log) (*Repo, error) {
	if err := eng.EnsureIndex(ctx, Collection, store.IndexSpec{
		Name:          "edv-config-controller",
		Fields:        []string{"controller"},
		PartialExists: []string{"controller"},
	}); err != nil {
		return nil, err
	}
	return &Repo{
		eng: eng,
		inner: &config.Repo[Config]{
			Engine:     eng,
			Audit:      log,
			Collection: Collection,
			Assert:     assertConfig,
			IDOf:       func(c Config) string { return c.ID },
			SequenceOf: func(c Config) int64 { return c.Sequence },
		},
	}, nil
}

func (r *Repo) Insert(ctx context.Context, cfg Config) (Config, error) { return r.inner.Insert(ctx, cfg) }
func (r *Repo) Update(ctx context.Context, cfg Config) (Config, error) { return r.inner.Update(ctx, cfg) }
func (r *Repo) Get(ctx context.Context, id string) (Config, error)     { return r.inner.Get(ctx, id) }

// FindByController looks up every vault config owned by controller.
func (r *Repo) FindByController(ctx context.Context, controller string) ([]Config, error) {
	recs, err := r.eng.Find(ctx, Collection, store.FindOptions{
		Selector: store.Selector{"controller": controller},
		UseIndex: []string{Collection, "edv-config-controller"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]Config, 0, len(recs))
	for _, rec := range recs {
		var c Config
		if err := config.FromMap(rec, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
