package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
)

const (
	X25519KakType = "X25519KeyAgreementKey2020"

	// Multicodec headers the design uses when serializing the public/private
	// halves into a multibase string.
	x25519PubMulticodecPrefix  = "\xec\x01"
	x25519PrivMulticodecPrefix = "\x82\x26"
)

// X25519Kak is a curve25519 key-agreement key, the "recommended" cipher
// suite's key-agreement primitive.
type X25519Kak struct {
	ID   string
	priv *ecdh.PrivateKey
	pub  *ecdh.PublicKey
}

// GenerateX25519Kak creates a fresh X25519 keypair.
func GenerateX25519Kak() (*X25519Kak, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &X25519Kak{priv: priv, pub: priv.PublicKey()}, nil
}

// ImportX25519Kak reconstructs a keypair from a 32-byte secret scalar.
func ImportX25519Kak(secret []byte) (*X25519Kak, error) {
	priv, err := ecdh.X25519().NewPrivateKey(secret)
	if err != nil {
		return nil, err
	}
	return &X25519Kak{priv: priv, pub: priv.PublicKey()}, nil
}

// DeriveSecret performs ECDH with a peer public key, returning the 32-byte
// shared secret.
func (k *X25519Kak) DeriveSecret(peer []byte) ([]byte, error) {
	pub, err := ecdh.X25519().NewPublicKey(peer)
	if err != nil {
		return nil, err
	}
	return k.priv.ECDH(pub)
}

// RawPrivate returns the 32-byte private scalar. Caller must zero it.
func (k *X25519Kak) RawPrivate() []byte { return k.priv.Bytes() }

// RawPublic returns the 32-byte public key.
func (k *X25519Kak) RawPublic() []byte { return k.pub.Bytes() }

// PublicKeyMultibase exports the public key with its multicodec header,
// multibase-encoded.
func (k *X25519Kak) PublicKeyMultibase() (string, error) {
	return encodeMultikey(x25519PubMulticodecPrefix, k.pub.Bytes())
}

// PrivateKeyMultibase exports the private key with its multicodec header,
// multibase-encoded.
func (k *X25519Kak) PrivateKeyMultibase() (string, error) {
	return encodeMultikey(x25519PrivMulticodecPrefix, k.priv.Bytes())
}
