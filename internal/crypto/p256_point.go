package crypto

import (
	"crypto/elliptic"
	"math/big"
)

// p256Decompress expands a 33-byte SEC1-compressed P-256 public key to its
// 65-byte uncompressed form by solving y^2 = x^3 - 3x + b (mod p) and
// picking the root matching the compression's parity byte. P-256's prime is
// 3 mod 4, so the square root is a single modular exponentiation.
func p256Decompress(compressed []byte) []byte {
	curve := elliptic.P256().Params()
	x := new(big.Int).SetBytes(compressed[1:])

	ySq := new(big.Int).Exp(x, big.NewInt(3), curve.P)
	threeX := new(big.Int).Mul(x, big.NewInt(3))
	ySq.Sub(ySq, threeX)
	ySq.Add(ySq, curve.B)
	ySq.Mod(ySq, curve.P)

	exp := new(big.Int).Add(curve.P, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))
	y := new(big.Int).Exp(ySq, exp, curve.P)

	wantOdd := compressed[0] == 0x03
	if y.Bit(0) == 1 != wantOdd {
		y.Sub(curve.P, y)
	}

	out := make([]byte, 65)
	out[0] = 0x04
	xBytes := x.Bytes()
	yBytes := y.Bytes()
	copy(out[1+32-len(xBytes):33], xBytes)
	copy(out[33+32-len(yBytes):65], yBytes)
	return out
}
