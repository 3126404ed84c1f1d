package crypto

import (
	"crypto/rand"
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultPbkdf2Iterations is fixed by cipher version "1"; it is not
// configurable outside of tests.
const DefaultPbkdf2Iterations = 100_000

const Pbkdf2SaltSize = 16

// Pbkdf2Params mirrors the options bag the design passes to deriveBits.
type Pbkdf2Params struct {
	BitLength  int
	Iterations int
	Password   string
	Salt       []byte // 16 random bytes if nil
}

// Pbkdf2Result carries the salt actually used alongside the derived bits, so
// callers that generated a random salt can persist it.
type Pbkdf2Result struct {
	Salt        []byte
	DerivedBits []byte
}

// DeriveBits runs PBKDF2-HMAC-SHA-256 over p.Password, generating a random
// salt when p.Salt is empty.
func DeriveBits(p Pbkdf2Params) (*Pbkdf2Result, error) {
	iterations := p.Iterations
	if iterations <= 0 {
		iterations = DefaultPbkdf2Iterations
	}
	salt := p.Salt
	if len(salt) == 0 {
		salt = make([]byte, Pbkdf2SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
	}
	byteLen := p.BitLength / 8
	derived := pbkdf2.Key([]byte(p.Password), salt, iterations, byteLen, sha256.New)
	return &Pbkdf2Result{Salt: salt, DerivedBits: derived}, nil
}
