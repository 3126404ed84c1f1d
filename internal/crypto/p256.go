package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"

	"edv-core/internal/idcodec"
)

const (
	P256KakType = "Multikey"

	// Raw export form: 32 secret bytes + 33 compressed public bytes,
	// zero-padded to 72 bytes before wrapping (fips cipher suite only).
	P256RawSize     = 72
	p256SecretSize  = 32
	p256CompPubSize = 33
)

// P256Kak is a NIST P-256 key-agreement key, the "fips" cipher suite's
// key-agreement primitive.
type P256Kak struct {
	ID   string
	priv *ecdh.PrivateKey
	pub  *ecdh.PublicKey
}

// GenerateP256Kak creates a fresh P-256 keypair.
func GenerateP256Kak() (*P256Kak, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &P256Kak{priv: priv, pub: priv.PublicKey()}, nil
}

// ImportP256Kak reconstructs a keypair from raw secret and compressed-public
// bytes (32 and 33 bytes respectively).
func ImportP256Kak(secret, pub []byte) (*P256Kak, error) {
	priv, err := ecdh.P256().NewPrivateKey(secret)
	if err != nil {
		return nil, err
	}
	pk, err := ecdh.P256().NewPublicKey(decompressP256(pub))
	if err != nil {
		return nil, err
	}
	return &P256Kak{priv: priv, pub: pk}, nil
}

// DeriveSecret performs ECDH with a peer public key.
func (k *P256Kak) DeriveSecret(peer []byte) ([]byte, error) {
	pub, err := ecdh.P256().NewPublicKey(decompressP256(peer))
	if err != nil {
		return nil, err
	}
	return k.priv.ECDH(pub)
}

// PublicCompressed returns the 33-byte SEC1-compressed public key, safe to
// hand to a peer — unlike RawForm, which also carries the secret half.
func (k *P256Kak) PublicCompressed() []byte {
	return compressP256(k.pub.Bytes())
}

// PublicKeyMultibase multibase-encodes the compressed public key, without a
// multicodec header (the "fips" suite identifies the key type via Type,
// not a codec prefix).
func (k *P256Kak) PublicKeyMultibase() (string, error) {
	return idcodec.Encode(k.PublicCompressed())
}

// RawForm assembles the 72-byte raw export form: secret || compressed
// public || 7 zero padding bytes.
func (k *P256Kak) RawForm() []byte {
	out := make([]byte, P256RawSize)
	copy(out[:p256SecretSize], k.priv.Bytes())
	copy(out[p256SecretSize:p256SecretSize+p256CompPubSize], compressP256(k.pub.Bytes()))
	return out
}

// ParseRawForm splits a 72-byte raw export form into secret and compressed
// public halves.
func ParseRawForm(raw []byte) (secret, pub []byte, err error) {
	if len(raw) != P256RawSize {
		return nil, nil, errors.New("crypto: p256 raw form must be 72 bytes")
	}
	secret = append([]byte(nil), raw[:p256SecretSize]...)
	pub = append([]byte(nil), raw[p256SecretSize:p256SecretSize+p256CompPubSize]...)
	return secret, pub, nil
}

// compressP256 converts an uncompressed SEC1 public key (65 bytes) to its
// 33-byte compressed form. Go's crypto/ecdh exposes only the uncompressed
// form, so this package does the point compression itself.
func compressP256(uncompressed []byte) []byte {
	if len(uncompressed) != 65 {
		return uncompressed
	}
	x := uncompressed[1:33]
	y := uncompressed[33:65]
	out := make([]byte, 33)
	if y[len(y)-1]&1 == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	copy(out[1:], x)
	return out
}

// decompressP256 expands a 33-byte compressed SEC1 public key back to its
// 65-byte uncompressed form for crypto/ecdh, which only accepts that form.
func decompressP256(compressed []byte) []byte {
	if len(compressed) != 33 {
		return compressed
	}
	return p256Decompress(compressed)
}
