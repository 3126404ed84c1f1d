package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	KekKeySize = 32
	kwIV       = 0xA6A6A6A6A6A6A6A6
)

// Kek is a 256-bit AES Key Wrap (RFC 3394) key-encryption key. It wraps and
// unwraps other keys; it never encrypts application data directly.
type Kek struct {
	block cipher.Block
}

// ImportKek imports a raw 32-byte secret as an AES-KW key.
func ImportKek(secret []byte) (*Kek, error) {
	if len(secret) != KekKeySize {
		return nil, errors.New("crypto: kek secret must be 32 bytes")
	}
	block, err := aes.NewCipher(secret)
	if err != nil {
		return nil, err
	}
	return &Kek{block: block}, nil
}

// WrapKey wraps unwrappedKey (a multiple of 8 bytes, at least 16) per RFC
// 3394, producing len(unwrappedKey)+8 bytes of wrapped output.
func (k *Kek) WrapKey(unwrappedKey []byte) ([]byte, error) {
	n := len(unwrappedKey) / 8
	if n < 2 || len(unwrappedKey)%8 != 0 {
		return nil, errors.New("crypto: key to wrap must be a multiple of 8 bytes, at least 16")
	}

	r := make([][]byte, n)
	for i := 0; i < n; i++ {
		r[i] = append([]byte(nil), unwrappedKey[i*8:(i+1)*8]...)
	}

	var a [8]byte
	binary.BigEndian.PutUint64(a[:], kwIV)

	buf := make([]byte, 16)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], a[:])
			copy(buf[8:], r[i-1])
			k.block.Encrypt(buf, buf)

			t := uint64(n*j + i)
			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)
			for b := 0; b < 8; b++ {
				a[b] = buf[b] ^ tb[b]
			}
			copy(r[i-1], buf[8:])
		}
	}

	out := make([]byte, 8+len(unwrappedKey))
	copy(out[:8], a[:])
	for i := 0; i < n; i++ {
		copy(out[8+i*8:], r[i])
	}
	return out, nil
}

// UnwrapKey reverses WrapKey. Per the design, a malformed or
// incorrectly-keyed wrapped value is reported via ok=false, never an error:
// the caller cannot distinguish "wrong password" from "corrupted data" by
// timing or by error type.
func (k *Kek) UnwrapKey(wrapped []byte) (key []byte, ok bool) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, false
	}
	n := len(wrapped)/8 - 1

	var a [8]byte
	copy(a[:], wrapped[:8])

	r := make([][]byte, n)
	for i := 0; i < n; i++ {
		r[i] = append([]byte(nil), wrapped[8+i*8:8+(i+1)*8]...)
	}

	buf := make([]byte, 16)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			var tb [8]byte
			binary.BigEndian.PutUint64(tb[:], t)
			var ax [8]byte
			for b := 0; b < 8; b++ {
				ax[b] = a[b] ^ tb[b]
			}
			copy(buf[:8], ax[:])
			copy(buf[8:], r[i-1])
			k.block.Decrypt(buf, buf)
			copy(a[:], buf[:8])
			copy(r[i-1], buf[8:])
		}
	}

	var expected [8]byte
	binary.BigEndian.PutUint64(expected[:], kwIV)
	if subtle.ConstantTimeCompare(a[:], expected[:]) != 1 {
		return nil, false
	}

	out := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		out = append(out, r[i]...)
	}
	return out, true
}
