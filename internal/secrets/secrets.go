// Package secrets implements password-gated derivation, wrapping, and
// unwrapping of the two per-vault keys (blinded-index HMAC key and
// key-agreement key), per cipher suite version "1".
package secrets

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	cr "edv-core/internal/crypto"
	"edv-core/internal/errs"
	"edv-core/internal/idcodec"
)

const (
	Version = "1"

	CipherRecommended = "recommended"
	CipherFips        = "fips"

	saltSize       = cr.Pbkdf2SaltSize // 16
	wrappedKeySize = 40
	wrappedKakSize = 80
)

// KeyRef is a {id, type} reference to a key whose material lives in the
// secret, embedded by value in the vault config.
type KeyRef struct {
	ID   string `bson:"id" json:"id"`
	Type string `bson:"type" json:"type"`
}

// Secret is the encrypted-at-rest payload of a secret config.
type Secret struct {
	Version                string `bson:"version" json:"version"`
	Salt                   string `bson:"salt" json:"salt"`
	WrappedKey             string `bson:"wrappedKey" json:"wrappedKey"`
	WrappedKeyAgreementKey string `bson:"wrappedKeyAgreementKey,omitempty" json:"wrappedKeyAgreementKey,omitempty"`
}

// Config is the persisted secret config record.
type Config struct {
	ID                string `bson:"id" json:"id"`
	HmacID            string `bson:"hmacId" json:"hmacId"`
	KeyAgreementKeyID string `bson:"keyAgreementKeyId" json:"keyAgreementKeyId"`
	Secret            Secret `bson:"secret" json:"secret"`
	Sequence          int64  `bson:"sequence" json:"sequence"`
}

// Keys is the pair of derived sub-keys plus the cipher suite they were
// derived under.
type Keys struct {
	Hmac          *cr.Hmac
	X25519        *cr.X25519Kak // set iff CipherVersion == recommended
	P256          *cr.P256Kak   // set iff CipherVersion == fips
	CipherVersion string
}

// GenerateOpts parameterizes Generate.
type GenerateOpts struct {
	ID            string
	Password      string
	CipherVersion string // "recommended" (default) or "fips"
}

// GenerateResult bundles the derived keys with the config to persist.
type GenerateResult struct {
	Keys   Keys
	Config Config
}

// Generate derives fresh per-vault keys from a password and produces the
// secret config record that lets a future Decrypt reconstruct them.
func Generate(opts GenerateOpts) (*GenerateResult, error) {
	if opts.ID == "" {
		return nil, errors.New("secrets: id is required")
	}
	if opts.Password == "" {
		return nil, errors.New("secrets: password is required")
	}
	cipherVersion := opts.CipherVersion
	if cipherVersion == "" {
		cipherVersion = CipherRecommended
	}
	if cipherVersion != CipherRecommended && cipherVersion != CipherFips {
		return nil, fmt.Errorf("secrets: unsupported cipher version %q", cipherVersion)
	}

	kdk, err := cr.GenerateHmac()
	if err != nil {
		return nil, err
	}

	pb, err := cr.DeriveBits(cr.Pbkdf2Params{BitLength: 256, Password: opts.Password})
	if err != nil {
		return nil, err
	}
	kekSecret := pb.DerivedBits
	kek, err := cr.ImportKek(kekSecret)
	cr.Zero(kekSecret)
	if err != nil {
		return nil, err
	}

	wrappedKeyRaw, err := kek.WrapKey(kdk.RawBytes())
	if err != nil {
		return nil, err
	}
	if len(wrappedKeyRaw) != wrappedKeySize {
		return nil, fmt.Errorf("secrets: unexpected wrapped key size %d", len(wrappedKeyRaw))
	}
	wrappedKeyEnc, err := idcodec.Encode(wrappedKeyRaw)
	if err != nil {
		return nil, err
	}
	saltEnc, err := idcodec.Encode(pb.Salt)
	if err != nil {
		return nil, err
	}

	secret := Secret{
		Version:    Version,
		Salt:       saltEnc,
		WrappedKey: wrappedKeyEnc,
	}

	var p256Raw []byte
	if cipherVersion == CipherFips {
		fipsKey, err := cr.GenerateP256Kak()
		if err != nil {
			return nil, err
		}
		p256Raw = fipsKey.RawForm()
		wrappedKakRaw, err := kek.WrapKey(p256Raw)
		if err != nil {
			cr.Zero(p256Raw)
			return nil, err
		}
		if len(wrappedKakRaw) != wrappedKakSize {
			cr.Zero(p256Raw)
			return nil, fmt.Errorf("secrets: unexpected wrapped kak size %d", len(wrappedKakRaw))
		}
		wrappedKakEnc, err := idcodec.Encode(wrappedKakRaw)
		cr.Zero(p256Raw)
		if err != nil {
			return nil, err
		}
		secret.WrappedKeyAgreementKey = wrappedKakEnc
	}

	keys, err := deriveKeys(kdk, secret, kek)
	kdk.Zero()
	if err != nil {
		return nil, err
	}

	keys.Hmac.ID = "urn:uuid:" + uuid.NewString()
	kakID := "urn:uuid:" + uuid.NewString()
	switch cipherVersion {
	case CipherFips:
		keys.P256.ID = kakID
	default:
		keys.X25519.ID = kakID
	}

	cfg := Config{
		ID:                opts.ID,
		HmacID:            keys.Hmac.ID,
		KeyAgreementKeyID: kakID,
		Secret:            secret,
		Sequence:          0,
	}

	return &GenerateResult{Keys: *keys, Config: cfg}, nil
}

// DecryptOpts parameterizes Decrypt.
type DecryptOpts struct {
	Config   Config
	Password string
}

// Decrypt attempts to unlock a secret config with a password. A wrong
// password yields ok=false, never an error — it is indistinguishable from a
// crypto-level unwrap failure, by design.
func Decrypt(opts DecryptOpts) (keys *Keys, ok bool, err error) {
	cfg := opts.Config
	if cfg.Secret.Version != Version {
		return nil, false, fmt.Errorf("secrets: unsupported secret version %q", cfg.Secret.Version)
	}

	salt, err := idcodec.DecodeSized(cfg.Secret.Salt, saltSize)
	if err != nil {
		return nil, false, err
	}
	wrappedKey, err := idcodec.DecodeSized(cfg.Secret.WrappedKey, wrappedKeySize)
	if err != nil {
		return nil, false, err
	}

	pb, err := cr.DeriveBits(cr.Pbkdf2Params{
		BitLength:  256,
		Iterations: cr.DefaultPbkdf2Iterations,
		Password:   opts.Password,
		Salt:       salt,
	})
	if err != nil {
		return nil, false, err
	}
	kekSecret := pb.DerivedBits
	kek, err := cr.ImportKek(kekSecret)
	cr.Zero(kekSecret)
	if err != nil {
		return nil, false, err
	}

	kdkRaw, unwrapOk := kek.UnwrapKey(wrappedKey)
	if !unwrapOk {
		return nil, false, nil
	}
	kdk, err := cr.ImportHmac(kdkRaw)
	cr.Zero(kdkRaw)
	if err != nil {
		return nil, false, err
	}

	derived, err := deriveKeys(kdk, cfg.Secret, kek)
	kdk.Zero()
	if err != nil {
		return nil, false, err
	}

	derived.Hmac.ID = cfg.HmacID
	if derived.P256 != nil {
		derived.P256.ID = cfg.KeyAgreementKeyID
	} else {
		derived.X25519.ID = cfg.KeyAgreementKeyID
	}

	return derived, true, nil
}

// Assert validates a secret config's shape before it is persisted, the
// shape-check a config.Repo needs for its Insert/Update path.
func Assert(cfg Config) error {
	if cfg.ID == "" {
		return errs.NewTypeError("secrets: id is required")
	}
	if cfg.HmacID == "" {
		return errs.NewTypeError("secrets: hmacId is required")
	}
	if cfg.KeyAgreementKeyID == "" {
		return errs.NewTypeError("secrets: keyAgreementKeyId is required")
	}
	if cfg.Secret.Version != Version {
		return errs.NewTypeError("secrets: unsupported secret version %q", cfg.Secret.Version)
	}
	if cfg.Secret.Salt == "" || cfg.Secret.WrappedKey == "" {
		return errs.NewTypeError("secrets: salt and wrappedKey are required")
	}
	return nil
}

// deriveKeys computes the sub-keys {hmac, keyAgreementKey} from the
// key-derivation key, per the cipher suite implied by the presence of
// secret.WrappedKeyAgreementKey.
func deriveKeys(kdk *cr.Hmac, secret Secret, kek *cr.Kek) (*Keys, error) {
	hmacSecret := kdk.Sign([]byte("hmac"))
	hmacKey, err := cr.ImportHmac(hmacSecret)
	cr.Zero(hmacSecret)
	if err != nil {
		return nil, err
	}

	if secret.WrappedKeyAgreementKey != "" {
		wrapped, err := idcodec.DecodeSized(secret.WrappedKeyAgreementKey, wrappedKakSize)
		if err != nil {
			return nil, err
		}
		raw, ok := kek.UnwrapKey(wrapped)
		if !ok {
			return nil, errors.New("Invalid stored key agreement key.")
		}
		defer cr.Zero(raw)
		secretHalf, pubHalf, err := cr.ParseRawForm(raw)
		if err != nil {
			return nil, err
		}
		p256, err := cr.ImportP256Kak(secretHalf, pubHalf)
		cr.Zero(secretHalf)
		if err != nil {
			return nil, err
		}
		return &Keys{Hmac: hmacKey, P256: p256, CipherVersion: CipherFips}, nil
	}

	kakSecret := kdk.Sign([]byte("keyAgreementKey"))
	x25519, err := cr.ImportX25519Kak(kakSecret)
	cr.Zero(kakSecret)
	if err != nil {
		return nil, err
	}
	return &Keys{Hmac: hmacKey, X25519: x25519, CipherVersion: CipherRecommended}, nil
}
