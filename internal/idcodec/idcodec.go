// Package idcodec implements the identifier and key-material encoding used
// throughout the vault: an identity multihash of raw bytes, multibase-encoded
// with the base58btc ("z") prefix.
package idcodec

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"edv-core/internal/errs"
)

// RandomID returns a fresh 16-byte random value encoded as z+base58(identity-multihash(...)).
func RandomID() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return Encode(raw)
}

// Encode wraps raw bytes in an identity multihash and multibase-encodes the result.
func Encode(raw []byte) (string, error) {
	mh, err := multihash.Encode(raw, multihash.IDENTITY)
	if err != nil {
		return "", err
	}
	return multibase.Encode(multibase.Base58BTC, mh)
}

// Decode reverses Encode, returning the original raw bytes.
func Decode(s string) ([]byte, error) {
	enc, data, err := multibase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("idcodec: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, errors.New("idcodec: identifier is not base58btc multibase")
	}
	decoded, err := multihash.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("idcodec: %w", err)
	}
	if decoded.Code != multihash.IDENTITY {
		return nil, errors.New("idcodec: identifier is not an identity multihash")
	}
	return decoded.Digest, nil
}

// DecodeSized decodes s and requires the raw digest to be exactly size bytes.
func DecodeSized(s string, size int) ([]byte, error) {
	raw, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("idcodec: expected %d raw bytes, got %d", size, len(raw))
	}
	return raw, nil
}

// ValidID reports whether s is a well-formed 16-byte random identifier: a
// z-prefixed base58btc multibase encoding of an identity multihash of 16
// random bytes.
func ValidID(s string) bool {
	_, err := DecodeSized(s, 16)
	return err == nil
}

// AssertValid returns a ConstraintError naming id if it is not a well-formed
// identifier, and nil otherwise.
func AssertValid(id string) error {
	if ValidID(id) {
		return nil
	}
	return errs.NewConstraintError(fmt.Sprintf(
		"Identifier %q must be base58-encoded multibase, multihash array of 16 random bytes.", id,
	), nil)
}
