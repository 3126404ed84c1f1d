package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
)

const HmacKeySize = 32

// Hmac is a 256-bit HMAC-SHA-256 signing key used to blind index attributes
// and to derive the vault's sub-keys from the key-derivation key.
type Hmac struct {
	ID  string
	key []byte
}

const (
	HmacAlgorithm = "HS256"
	HmacType      = "Sha256HmacKey2019"
)

// GenerateHmac creates a fresh random HMAC key.
func GenerateHmac() (*Hmac, error) {
	key := make([]byte, HmacKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	_ = lockMemory(key)
	return &Hmac{key: key}, nil
}

// ImportHmac imports a raw 32-byte HMAC key. The caller retains ownership of
// secret; Import copies it.
func ImportHmac(secret []byte) (*Hmac, error) {
	if len(secret) != HmacKeySize {
		return nil, errors.New("crypto: hmac key must be 32 bytes")
	}
	key := make([]byte, HmacKeySize)
	copy(key, secret)
	_ = lockMemory(key)
	return &Hmac{key: key}, nil
}

// Sign computes the HMAC-SHA-256 tag of data.
func (h *Hmac) Sign(data []byte) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Verify reports whether tag is the correct HMAC-SHA-256 of data, in
// constant time.
func (h *Hmac) Verify(data, tag []byte) bool {
	expected := h.Sign(data)
	return subtle.ConstantTimeCompare(expected, tag) == 1
}

// RawBytes returns the raw key material. Callers must zero the slice (or a
// copy of it) when finished.
func (h *Hmac) RawBytes() []byte { return h.key }

// Zero destroys the in-memory key material.
func (h *Hmac) Zero() { ZeroGuarded(h.key) }
